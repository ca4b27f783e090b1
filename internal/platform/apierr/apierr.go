package apierr

import "fmt"

type Error struct {
	Status int
	Code   string
	Err    error
	// Fields carries per-field validation messages.
	Fields map[string]string
	// Details is attached verbatim to the response body.
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(fields map[string]string) *Error {
	return &Error{Status: 422, Code: "validation_failed", Err: fmt.Errorf("validation failed"), Fields: fields}
}
