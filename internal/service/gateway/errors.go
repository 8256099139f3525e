package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind groups gateway failures by how they are reported to the user.
type Kind string

const (
	KindGeneric   Kind = "generic"
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
)

// Names of the external collaborators, used in errors and metrics labels.
const (
	Geocode = "geocode"
	Chart   = "chart"
	Model   = "model"
)

// Error wraps a failed call to an external provider.
type Error struct {
	Gateway    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s gateway: status %d: %v", e.Gateway, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s gateway: %v", e.Gateway, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with the gateway name and upstream status code.
func Wrap(gatewayName string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Gateway: gatewayName, StatusCode: status, Err: err}
}

// Classify maps an error to the failure kind used for the user-facing message.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return KindForStatus(gwErr.StatusCode)
	}
	return KindGeneric
}

// KindForStatus classifies an upstream HTTP status code.
func KindForStatus(code int) Kind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindGeneric
	}
}

// Name returns the gateway an error came from, or "unknown".
func Name(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Gateway
	}
	return "unknown"
}
