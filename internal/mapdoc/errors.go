package mapdoc

import "fmt"

// ParseError describes a structurally invalid mapping document. It is fatal:
// a document that fails to parse is never resolved or validated.
type ParseError struct {
	File string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return e.File + ": " + e.Msg
}

// Unwrap returns the underlying error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// parseErrorf builds a ParseError for the given file.
func parseErrorf(file, format string, args ...any) *ParseError {
	return &ParseError{File: file, Msg: fmt.Sprintf(format, args...)}
}
