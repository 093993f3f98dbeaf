// Package validate runs the fixed rule set against a parsed mapping
// document and its resolved schemas.
//
// Every rule is independent and total: a finding in one never stops the
// others, so a single run reports the complete defect list. Diagnostics come
// back in rule order, then occurrence order within a rule. Custom rules
// loaded from Starlark files append after the built-ins.
package validate

import (
	"fieldmap/internal/mapdoc"
	"fieldmap/internal/resolver"
)

// Rule is one named check over a resolved document.
type Rule interface {
	ID() string
	Description() string
	Check(rc *Context) []Diagnostic
}

// Context carries one document and its resolved schemas through a run. It
// is read-only to rules.
type Context struct {
	Doc    *mapdoc.Document
	API    *resolver.APISchema
	Tables *resolver.TableSchema
}

// EachMapping visits every mapping node depth-first with its nesting depth
// and the symbol table in scope at that node.
func (rc *Context) EachMapping(fn func(node *mapdoc.MappingNode, depth int, scope *mapdoc.SymbolTable)) {
	mapdoc.WalkMappings(rc.Doc.Usecase.ResponseMapping, fn)
}

// FieldNames returns every mapped field name at any nesting depth.
func (rc *Context) FieldNames() map[string]bool {
	names := map[string]bool{}
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, _ *mapdoc.SymbolTable) {
		names[node.Field] = true
	})
	return names
}

// BaseTable returns the table the top-level scalar sources draw from: the
// root of the whole mapping tree, and the group-by default for top-level
// aggregates. Empty when no top-level mapping names a qualified source.
func (rc *Context) BaseTable() string {
	for i := range rc.Doc.Usecase.ResponseMapping {
		m := &rc.Doc.Usecase.ResponseMapping[i]
		if m.IsArray() || m.Source == "" {
			continue
		}
		if table, _, ok := mapdoc.SplitSource(m.Source); ok {
			return table
		}
	}
	return ""
}

// Validator runs an ordered list of rules: the twelve built-in checks
// first, then any custom rules appended after them.
type Validator struct {
	rules []Rule
}

// New creates a Validator with the built-in rule set.
func New() *Validator {
	return &Validator{rules: builtinRules()}
}

// Append adds rules after the existing ones. Used for custom Starlark
// rules.
func (v *Validator) Append(rules ...Rule) {
	v.rules = append(v.rules, rules...)
}

// Rules returns the rules in execution order.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, len(v.rules))
	copy(out, v.rules)
	return out
}

// Validate runs every rule and aggregates all findings; nothing
// short-circuits. The file name only labels the result.
func (v *Validator) Validate(file string, doc *mapdoc.Document, schemas *resolver.Schemas) *Result {
	rc := &Context{Doc: doc, API: schemas.API, Tables: schemas.Tables}
	diags := make([]Diagnostic, 0)
	for _, rule := range v.rules {
		diags = append(diags, rule.Check(rc)...)
	}

	status := StatusOK
	if HasErrors(diags) {
		status = StatusError
	}
	return &Result{File: file, Status: status, Diagnostics: diags}
}
