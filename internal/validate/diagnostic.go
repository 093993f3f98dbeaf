package validate

import "fmt"

// Severity classifies one diagnostic.
type Severity string

// Severity levels. Warnings are informational: they never change a run's
// status.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one validation finding.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
}

// String formats a diagnostic in golangci-lint style.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Severity, d.Rule, d.Message)
}

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the outcome of validating one document. Status is "ok" iff no
// Error-severity diagnostic exists; Warnings never flip it.
type Result struct {
	File        string       `json:"file"`
	Status      string       `json:"status"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// OK reports whether the run produced no errors.
func (r *Result) OK() bool {
	return r.Status == StatusOK
}

// ErrorResult folds a fatal pipeline failure into a single-diagnostic result,
// so parse and resolution errors surface through the same shape as rule
// findings.
func ErrorResult(file, rule string, err error) *Result {
	return &Result{
		File:        file,
		Status:      StatusError,
		Diagnostics: []Diagnostic{{Severity: SeverityError, Rule: rule, Message: err.Error()}},
	}
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// errorf builds an error-severity diagnostic for the given rule.
func errorf(rule, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Rule: rule, Message: fmt.Sprintf(format, args...)}
}
