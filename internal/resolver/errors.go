package resolver

import "fmt"

// ResolutionError describes a reference whose target is missing from the
// imported schema files. It is fatal: validation never runs against a
// partially resolved document.
type ResolutionError struct {
	File string // schema file the reference points into
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return e.File + ": " + e.Msg
}

// Unwrap returns the underlying error, if any.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// resolutionErrorf builds a ResolutionError for the given file.
func resolutionErrorf(file, format string, args ...any) *ResolutionError {
	return &ResolutionError{File: file, Msg: fmt.Sprintf(format, args...)}
}
