package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the node can produce into a fixed, small taxonomy. Implementations must translate
// node failures into one of these kinds instead of leaking node internals verbatim.
type Kind int

// Failure kinds.
const (
	KindValidation  Kind = iota + 1 // the node rejected the submission as invalid
	KindDuplicate                   // the submission was already processed by the node
	KindNotFound                    // the queried resource does not exist
	KindUnavailable                 // the node is unreachable or overloaded; retryable
	KindTimeout                     // the gateway-enforced deadline expired before the node answered
	KindInternal                    // anything else; never exposes node detail
)

// String returns the wire code of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_rejected"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// KindFromCode parses a wire code back to its Kind. Unknown codes fold into KindInternal so no node-internal error
// class ever reaches a client.
func KindFromCode(code string) Kind {
	switch code {
	case "validation_rejected":
		return KindValidation
	case "duplicate":
		return KindDuplicate
	case "not_found":
		return KindNotFound
	case "unavailable":
		return KindUnavailable
	case "timeout":
		return KindTimeout
	default:
		return KindInternal
	}
}

// Error is a classified bridge failure.
type Error struct {
	Kind    Kind
	Message string
}

// NewError builds a classified bridge failure.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a classified bridge failure with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// KindOf returns the failure kind of err, or KindInternal when err is not a classified bridge failure.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsDuplicate reports whether err is a duplicate-submission failure.
func IsDuplicate(err error) bool { return KindOf(err) == KindDuplicate }

// IsUnavailable reports whether err is a retryable availability failure.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsTimeout reports whether err is a gateway-enforced deadline failure.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }
