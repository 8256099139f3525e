package chat

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

func primedHistory(organic int) []chat.Turn {
	history := []chat.Turn{
		{Speaker: chat.SpeakerSystemPriming, Text: "system"},
		{Speaker: chat.SpeakerModelPriming, Text: "ack"},
	}
	for i := 0; i < organic; i++ {
		speaker := chat.SpeakerUser
		if i%2 == 1 {
			speaker = chat.SpeakerModel
		}
		history = append(history, chat.Turn{Speaker: speaker, Text: fmt.Sprintf("turn-%d", i)})
	}
	return history
}

func TestTrimKeepsPrimingAndMostRecent(t *testing.T) {
	a := NewAssembler(22)
	history := primedHistory(30)

	trimmed := a.Trim(history)
	require.Len(t, trimmed, 22)
	assert.Equal(t, chat.SpeakerSystemPriming, trimmed[0].Speaker)
	assert.Equal(t, chat.SpeakerModelPriming, trimmed[1].Speaker)
	if diff := cmp.Diff(history[len(history)-20:], trimmed[2:]); diff != "" {
		t.Fatalf("recent turns mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimUnderCeilingIsNoop(t *testing.T) {
	a := NewAssembler(22)
	for _, organic := range []int{0, 1, 19, 20} {
		history := primedHistory(organic)
		if diff := cmp.Diff(history, a.Trim(history)); diff != "" {
			t.Fatalf("organic=%d changed (-want +got):\n%s", organic, diff)
		}
	}
}

func TestTrimOneOverCeiling(t *testing.T) {
	a := NewAssembler(22)
	history := primedHistory(21)

	trimmed := a.Trim(history)
	require.Len(t, trimmed, 22)
	assert.Equal(t, "turn-1", trimmed[2].Text)
	assert.Equal(t, "turn-20", trimmed[21].Text)
}

func TestContextReturnsCopy(t *testing.T) {
	a := NewAssembler(22)
	history := primedHistory(2)

	ctx := a.Context(history)
	ctx[2].Text = "mutated"
	assert.Equal(t, "turn-0", history[2].Text)
}

func TestNewAssemblerCeilingFloor(t *testing.T) {
	assert.Equal(t, DefaultHistoryCeiling, NewAssembler(0).Ceiling())
	assert.Equal(t, DefaultHistoryCeiling, NewAssembler(3).Ceiling())
	assert.Equal(t, 42, NewAssembler(42).Ceiling())
}
