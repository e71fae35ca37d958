package provider

import (
	"errors"
	"fmt"
)

// Failure classes for the synthesis provider. Callers branch on the kind,
// never on provider-specific codes or messages.
type ErrorKind string

const (
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindBadParameters       ErrorKind = "bad_parameters"
	KindAuthFailure         ErrorKind = "auth_failure"
	KindRateLimited         ErrorKind = "rate_limited"
	KindTransient           ErrorKind = "transient"
	KindUnknown             ErrorKind = "unknown"
)

// A terminal provider failure, already translated out of the provider's
// own vocabulary.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether the failure was transient (timeout, connection
// failure). Provider-reported statuses are never retried.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// A locally rejected request. Never reaches the network and has no breaker
// effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid synthesis parameters: " + e.Reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Translates a provider status code into the local taxonomy.
func translateStatus(code int, message string) *Error {
	switch code {
	case 1008:
		return &Error{Kind: KindInsufficientBalance, Message: "upstream account has insufficient balance"}
	case 2013:
		return &Error{Kind: KindBadParameters, Message: "upstream rejected the synthesis parameters"}
	case 401, 403:
		return &Error{Kind: KindAuthFailure, Message: "upstream authentication failed"}
	case 429:
		return &Error{Kind: KindRateLimited, Message: "upstream rate limit exceeded"}
	default:
		if message == "" {
			message = fmt.Sprintf("upstream returned status %d", code)
		}
		return &Error{Kind: KindUnknown, Message: message}
	}
}
