package chat

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerSystemPriming Speaker = "system-priming"
	SpeakerModelPriming  Speaker = "model-priming"
	SpeakerUser          Speaker = "user"
	SpeakerModel         Speaker = "model"
)

// PrimingTurns is the number of fixed turns every history starts with.
const PrimingTurns = 2

// Turn is one entry in a conversation's ordered exchange log.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// IsPriming reports whether the turn is one of the non-evictable opening turns.
func (t Turn) IsPriming() bool {
	return t.Speaker == SpeakerSystemPriming || t.Speaker == SpeakerModelPriming
}
