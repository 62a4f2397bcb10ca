package errors

import "fmt"

// Kind classifies an AppError against the error policy table: each kind
// corresponds to one row of the handled-error-kinds table and carries
// its own observable effect at the call site.
type Kind string

const (
	KindPortConflict     Kind = "PORT_CONFLICT"
	KindMalformedFrame   Kind = "MALFORMED_FRAME"
	KindMalformedVariant Kind = "MALFORMED_VARIANT"
	KindUpstreamHTTP     Kind = "UPSTREAM_HTTP"
	KindUpstreamConnect  Kind = "UPSTREAM_CONNECT"
	KindHandlerPanic     Kind = "HANDLER_PANIC"
	KindSendToAbsentPeer Kind = "SEND_NO_PEER"
)

// AppError represents an application error tagged with a Kind so
// callers can distinguish error classes with errors.As instead of
// string matching.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with no wrapped cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap creates a new AppError wrapping another error.
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}
