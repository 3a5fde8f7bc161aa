package errs

import "errors"

// Error is a domain error with a stable machine-readable code. Handlers
// and clients branch on Code, never on message text.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the code carried by err, or "" for untyped errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
