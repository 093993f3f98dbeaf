// Package apilint lints the OpenAPI 3.x descriptions that mapping documents
// import, before the resolver places any trust in them. It runs vacuum with
// the fieldmap ruleset layered over the bundled OpenAPI rules; findings keep
// their source line and column for editor-friendly output.
package apilint

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/daveshanley/vacuum/motor"
	"github.com/daveshanley/vacuum/rulesets"
)

// Severity levels, as vacuum reports them.
type Severity string

// Severity constants.
const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
	SeverityHint  Severity = "hint"
)

// sevRank maps severity to a numeric rank for comparison.
var sevRank = map[Severity]int{SeverityHint: 0, SeverityInfo: 1, SeverityWarn: 2, SeverityError: 3}

// Violation is a single lint finding.
type Violation struct {
	File     string
	Line     int
	Col      int
	RuleID   string
	Severity Severity
	Message  string
}

// String formats a violation as file:line:col severity rule: message.
func (v Violation) String() string {
	return fmt.Sprintf("%s:%d:%d %s %s: %s", v.File, v.Line, v.Col, v.Severity, v.RuleID, v.Message)
}

// Linter applies one resolved ruleset to OpenAPI documents.
type Linter struct {
	ruleSet *rulesets.RuleSet
}

// New returns a linter running the default fieldmap ruleset.
func New() (*Linter, error) {
	rs, err := DefaultRuleSet()
	if err != nil {
		return nil, err
	}
	return &Linter{ruleSet: rs}, nil
}

// NewWithRuleSet returns a linter over an already resolved ruleset, such as
// one from LoadRuleSet.
func NewWithRuleSet(rs *rulesets.RuleSet) *Linter {
	return &Linter{ruleSet: rs}
}

// LintFile reads and lints one OpenAPI file.
func (l *Linter) LintFile(path string) ([]Violation, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the caller
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Lint(path, data)
}

// Lint applies the ruleset to spec bytes. name labels the violations and
// error messages; it does not need to be a real path.
func (l *Linter) Lint(name string, spec []byte) ([]Violation, error) {
	res := motor.ApplyRulesToRuleSet(&motor.RuleSetExecution{
		RuleSet:         l.ruleSet,
		Spec:            spec,
		CustomFunctions: customFunctions(),
		SilenceLogs:     true,
	})
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("lint %s: %w", name, errors.Join(res.Errors...))
	}

	vs := make([]Violation, 0, len(res.Results))
	for _, r := range res.Results {
		v := Violation{File: name, RuleID: r.RuleId, Message: r.Message}
		if r.Rule != nil {
			if v.RuleID == "" {
				v.RuleID = r.Rule.Id
			}
			v.Severity = Severity(r.Rule.Severity)
		}
		if v.Severity == "" {
			v.Severity = SeverityWarn
		}
		if r.StartNode != nil {
			v.Line = r.StartNode.Line
			v.Col = r.StartNode.Column
		}
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Line != vs[j].Line {
			return vs[i].Line < vs[j].Line
		}
		if vs[i].Col != vs[j].Col {
			return vs[i].Col < vs[j].Col
		}
		return vs[i].RuleID < vs[j].RuleID
	})
	return vs, nil
}

// HasErrors returns true if any violation has error severity.
func HasErrors(vs []Violation) bool {
	return HasAtOrAbove(vs, SeverityError)
}

// HasAtOrAbove returns true if any violation is at least minSev.
func HasAtOrAbove(vs []Violation, minSev Severity) bool {
	minRank := sevRank[minSev]
	for _, v := range vs {
		if sevRank[v.Severity] >= minRank {
			return true
		}
	}
	return false
}

// Filter returns violations at or above the given severity.
func Filter(vs []Violation, minSev Severity) []Violation {
	minRank := sevRank[minSev]
	var out []Violation
	for _, v := range vs {
		if sevRank[v.Severity] >= minRank {
			out = append(out, v)
		}
	}
	return out
}
