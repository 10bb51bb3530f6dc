package ratings

import "errors"

const (
	CodeNotFound   = "RATING_NOT_FOUND"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeValidation = "VALIDATION_ERROR"
)

// Messages recorded in the shared error field.
const (
	msgLoadFailed   = "error fetching user country data"
	msgInvalidData  = "invalid user country data"
	msgCreateFailed = "error creating country data"
	msgUpdateFailed = "error updating country data"
	msgRemoveFailed = "error removing country data"
	msgNotFound     = "country data not found"
	msgNoUser       = "no user loaded"
)

// Error is an application-layer error that can be mapped to an HTTP response.
// Err carries the underlying cause (for example a document store failure) when there is one.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func notFoundError(details map[string]any) *Error {
	return &Error{Status: 404, Code: CodeNotFound, Message: msgNotFound, Details: details}
}

func transportError(msg string, cause error) *Error {
	return &Error{Status: 502, Code: CodeTransport, Message: msg, Err: cause}
}

func validationError(msg string, details map[string]any) *Error {
	return &Error{Status: 422, Code: CodeValidation, Message: msg, Details: details}
}

func hasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func IsNotFound(err error) bool   { return hasCode(err, CodeNotFound) }
func IsTransport(err error) bool  { return hasCode(err, CodeTransport) }
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }
