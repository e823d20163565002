package upstream

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	// Unrecognized failures are logged but change no credential state.
	Unrecognized ErrorKind = iota
	AuthExpired
	RateLimited
	MalformedRequest
	NetworkOrTimeout
	DataAnomaly
)

func (k ErrorKind) String() string {
	switch k {
	case AuthExpired:
		return "auth_expired"
	case RateLimited:
		return "rate_limited"
	case MalformedRequest:
		return "malformed_request"
	case NetworkOrTimeout:
		return "network_or_timeout"
	case DataAnomaly:
		return "data_anomaly"
	default:
		return "unrecognized"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (HTTP %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification of err; errors that did not come from
// the upstream parser are Unrecognized.
func KindOf(err error) ErrorKind {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return Unrecognized
}

// classifyBody maps the error code embedded in a failure body to a kind.
// The platform reports failures as free text, so this is the only place the
// body is pattern-matched.
func classifyBody(status int, body string) ErrorKind {
	switch {
	case status == 401 || strings.Contains(body, "401"):
		return AuthExpired
	case status == 429 || strings.Contains(body, "429"):
		return RateLimited
	case status == 400 || strings.Contains(body, "400"):
		return MalformedRequest
	default:
		return Unrecognized
	}
}
