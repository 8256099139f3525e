package chat

import "github.com/zhouzirui/astro-tavern/backend/internal/model/chat"

// DefaultHistoryCeiling keeps the priming pair plus the last 20 organic turns.
const DefaultHistoryCeiling = 22

// Assembler builds the turns sent to the model and enforces the history ceiling.
type Assembler struct {
	ceiling int
}

// NewAssembler returns an assembler; ceilings below four fall back to the default.
func NewAssembler(ceiling int) *Assembler {
	if ceiling < chat.PrimingTurns+2 {
		ceiling = DefaultHistoryCeiling
	}
	return &Assembler{ceiling: ceiling}
}

// Ceiling reports the maximum number of stored turns.
func (a *Assembler) Ceiling() int {
	return a.ceiling
}

// Context returns the ordered turns to submit for the given history.
func (a *Assembler) Context(history []chat.Turn) []chat.Turn {
	return append([]chat.Turn(nil), history...)
}

// Trim rewrites an over-long history to the priming pair followed by the most recent
// ceiling-2 turns. Discarded turns are gone for good.
func (a *Assembler) Trim(history []chat.Turn) []chat.Turn {
	if len(history) <= a.ceiling {
		return history
	}

	keep := a.ceiling - chat.PrimingTurns
	trimmed := make([]chat.Turn, 0, a.ceiling)
	trimmed = append(trimmed, history[:chat.PrimingTurns]...)
	trimmed = append(trimmed, history[len(history)-keep:]...)
	return trimmed
}
