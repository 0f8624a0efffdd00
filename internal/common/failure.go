package common

import (
	"errors"
	"net/http"
)

// Kind is the closed set of failure classes a request can end with.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
)

// Reasons carried by Unauthorized failures. They are returned verbatim to
// the client.
const (
	ReasonMissingToken = "missing token"
	ReasonTokenExpired = "token expired"
	ReasonTokenInvalid = "token invalid"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Internal"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Failure is an expected, classified outcome of an operation. Key selects a
// localized message, Message is the English fallback and Payload carries
// the offending value (an id, a username) for the audit trail.
type Failure struct {
	Kind    Kind
	Key     string
	Message string
	Payload any
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Kind.String() + ": " + f.Message + ": " + f.Err.Error()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Wrap returns a copy of f with err attached as the cause.
func (f *Failure) Wrap(err error) *Failure {
	c := *f
	c.Err = err
	return &c
}

func Validation(key, msg string) *Failure {
	return &Failure{Kind: KindValidation, Key: key, Message: msg}
}

func NotFound(key, msg string, payload any) *Failure {
	return &Failure{Kind: KindNotFound, Key: key, Message: msg, Payload: payload}
}

func Conflict(key, msg string, payload any) *Failure {
	return &Failure{Kind: KindConflict, Key: key, Message: msg, Payload: payload}
}

// Unauthorized builds an authentication failure; reason is one of the
// Reason constants.
func Unauthorized(reason string) *Failure {
	return &Failure{Kind: KindUnauthorized, Key: "auth.unauthorized", Message: reason}
}

// Internal classifies an unexpected error.
func Internal(err error) *Failure {
	return &Failure{Kind: KindInternal, Key: "internal", Message: "An error occurred", Err: err}
}

// AsFailure extracts the outermost *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf classifies any error. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	return KindInternal
}
