package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("invalid chat request")

const missingBirthDetailsMessage = "Birth details are required. Please provide your birth information first."

// ValidationError rejects a request before any gateway is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidation, e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Failure is a gateway or store failure surfaced to the caller with a safe message.
type Failure struct {
	Kind gateway.Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("chat failed (%s): %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FallbackReply stands in for a reply the model failed to produce.
const FallbackReply = "I apologize, but I'm having trouble generating a response right now. Please try rephrasing your question."

var failureMessages = map[gateway.Kind]string{
	gateway.KindAuth:      "There's an authentication issue with the astrology service. Please contact support.",
	gateway.KindRateLimit: "The service is currently busy. Please wait a moment and try again.",
	gateway.KindTimeout:   "The request timed out. Please try again with a shorter question.",
	gateway.KindGeneric:   "I'm sorry, I'm having technical difficulties right now. Please try again in a moment.",
}

// UserMessage maps an orchestrator error to the text shown to the user.
func UserMessage(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var failure *Failure
	if errors.As(err, &failure) {
		if msg, ok := failureMessages[failure.Kind]; ok {
			return msg
		}
	}
	return failureMessages[gateway.KindGeneric]
}
