package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"fieldmap/internal/mapdoc"
)

const (
	starlarkMaxSteps     = uint64(100_000)
	starlarkEvalTimeout  = 2 * time.Second
	maxStarlarkRuleBytes = 256 * 1024
)

// StarlarkRule is one user-supplied check loaded from a .star file. Its
// check(doc) function runs once per document against a frozen view of the
// parsed mapping.
type StarlarkRule struct {
	id    string
	check starlark.Value
}

func (r *StarlarkRule) ID() string          { return r.id }
func (r *StarlarkRule) Description() string { return "custom rule " + r.id }

// LoadCustomRules loads every *.star file under dir as a custom rule, in
// file-name order. Each file must define check(doc) returning a list of
// {"severity": ..., "message": ...} dicts. The returned rules carry IDs of
// the form custom/<file-stem> and are meant to be appended after the
// built-ins.
func LoadCustomRules(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read custom rules dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".star") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		r, err := loadStarlarkRule(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func loadStarlarkRule(path string) (*StarlarkRule, error) {
	src, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified rule files
	if err != nil {
		return nil, fmt.Errorf("read custom rule: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".star")
	if len(src) > maxStarlarkRuleBytes {
		return nil, fmt.Errorf("custom rule %q exceeds %d bytes", stem, maxStarlarkRuleBytes)
	}

	thread := &starlark.Thread{Name: "custom-rule-load"}
	thread.SetMaxExecutionSteps(starlarkMaxSteps)

	var globals starlark.StringDict
	err = runStarlarkWithTimeout(thread, starlarkEvalTimeout, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filepath.Base(path), src, nil)
		if err != nil {
			return err
		}
		globals = loaded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load custom rule %q: %w", stem, err)
	}

	check, ok := globals["check"]
	if !ok {
		return nil, fmt.Errorf("custom rule %q does not define check(doc)", stem)
	}
	return &StarlarkRule{id: "custom/" + stem, check: check}, nil
}

// Check calls the rule's check(doc) function. A failing or misbehaving rule
// reports one error diagnostic under its own id; it never aborts the run.
func (r *StarlarkRule) Check(rc *Context) []Diagnostic {
	thread := &starlark.Thread{Name: r.id}
	thread.SetMaxExecutionSteps(starlarkMaxSteps)

	var result starlark.Value
	err := runStarlarkWithTimeout(thread, starlarkEvalTimeout, func() error {
		out, err := starlark.Call(thread, r.check, starlark.Tuple{documentValue(rc.Doc)}, nil)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return []Diagnostic{errorf(r.id, "custom rule failed: %v", err)}
	}
	return r.findings(result)
}

func (r *StarlarkRule) findings(result starlark.Value) []Diagnostic {
	if result == nil || result == starlark.None {
		return nil
	}
	iterable, ok := result.(starlark.Iterable)
	if !ok {
		return []Diagnostic{errorf(r.id, "custom rule returned %s, want a list of findings", result.Type())}
	}

	var ds []Diagnostic
	iter := iterable.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		d, err := r.finding(item)
		if err != nil {
			ds = append(ds, errorf(r.id, "%v", err))
			continue
		}
		ds = append(ds, d)
	}
	return ds
}

func (r *StarlarkRule) finding(item starlark.Value) (Diagnostic, error) {
	m, ok := item.(starlark.Mapping)
	if !ok {
		return Diagnostic{}, fmt.Errorf("finding is %s, want a dict with severity and message", item.Type())
	}
	sev, err := mappingString(m, "severity")
	if err != nil {
		return Diagnostic{}, err
	}
	msg, err := mappingString(m, "message")
	if err != nil {
		return Diagnostic{}, err
	}

	var severity Severity
	switch sev {
	case string(SeverityError):
		severity = SeverityError
	case string(SeverityWarning):
		severity = SeverityWarning
	default:
		return Diagnostic{}, fmt.Errorf("finding severity %q is not error or warning", sev)
	}
	return Diagnostic{Severity: severity, Rule: r.id, Message: msg}, nil
}

func mappingString(m starlark.Mapping, key string) (string, error) {
	v, found, err := m.Get(starlark.String(key))
	if err != nil || !found {
		return "", fmt.Errorf("finding lacks key %q", key)
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("finding key %q is %s, want a string", key, v.Type())
	}
	return s, nil
}

func runStarlarkWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("custom rule timed out")
		err := <-done
		if err != nil {
			return fmt.Errorf("custom rule timed out after %s: %v", timeout, err)
		}
		return fmt.Errorf("custom rule timed out after %s", timeout)
	}
}

// documentValue builds the frozen dict view of a Document handed to
// check(doc). Every key is always present; absent optional sections read as
// empty strings, empty lists, or None.
func documentValue(doc *mapdoc.Document) starlark.Value {
	d := starlark.NewDict(7)
	setKey(d, "version", starlark.String(doc.Version))
	setKey(d, "usecase", starlark.String(doc.Usecase.Name))
	setKey(d, "summary", starlark.String(doc.Usecase.Summary))
	setKey(d, "output", starlark.String(doc.Usecase.Output))
	setKey(d, "fields", mappingListValue(doc.Usecase.ResponseMapping))
	setKey(d, "filters", filtersValue(doc.Usecase.Filters))
	setKey(d, "transforms", transformsValue(doc.Usecase.Transforms))
	d.Freeze()
	return d
}

func mappingListValue(nodes []mapdoc.MappingNode) *starlark.List {
	items := make([]starlark.Value, 0, len(nodes))
	for i := range nodes {
		items = append(items, mappingValue(&nodes[i]))
	}
	return starlark.NewList(items)
}

func mappingValue(node *mapdoc.MappingNode) starlark.Value {
	d := starlark.NewDict(8)
	setKey(d, "field", starlark.String(node.Field))
	setKey(d, "type", starlark.String(node.Type))
	setKey(d, "source", starlark.String(node.Source))
	setKey(d, "source_table", starlark.String(node.SourceTable))

	if node.Join != nil {
		j := starlark.NewDict(4)
		setKey(j, "table", starlark.String(node.Join.Table))
		setKey(j, "on", starlark.String(node.Join.On))
		setKey(j, "type", starlark.String(node.Join.Type))
		setKey(j, "alias", starlark.String(node.Join.Alias))
		setKey(d, "join", j)
	} else {
		setKey(d, "join", starlark.None)
	}

	chain := make([]starlark.Value, 0, len(node.JoinChain))
	for _, link := range node.JoinChain {
		l := starlark.NewDict(3)
		setKey(l, "table", starlark.String(link.Table))
		setKey(l, "on", starlark.String(link.On))
		setKey(l, "alias", starlark.String(link.Alias))
		chain = append(chain, l)
	}
	setKey(d, "join_chain", starlark.NewList(chain))

	if node.Aggregate != nil {
		a := starlark.NewDict(2)
		setKey(a, "type", starlark.String(node.Aggregate.Type))
		setKey(a, "group_by", starlark.String(node.Aggregate.GroupBy))
		setKey(d, "aggregate", a)
	} else {
		setKey(d, "aggregate", starlark.None)
	}

	setKey(d, "fields", mappingListValue(node.Fields))
	return d
}

func filtersValue(filters []mapdoc.Filter) *starlark.List {
	items := make([]starlark.Value, 0, len(filters))
	for _, f := range filters {
		d := starlark.NewDict(12)
		setKey(d, "param", starlark.String(f.Param))
		setKey(d, "maps_to", starlark.String(f.MapsTo))
		setKey(d, "condition", starlark.String(f.Condition))
		setKey(d, "strategy", starlark.String(f.Strategy))
		setKey(d, "page_size", starlark.MakeInt(f.PageSize))
		setKey(d, "limit_param", starlark.String(f.LimitParam))
		setKey(d, "max_page_size", starlark.MakeInt(f.MaxPageSize))
		setKey(d, "cursor_field", starlark.String(f.CursorField))
		setKey(d, "default_column", starlark.String(f.DefaultColumn))
		setKey(d, "default_direction", starlark.String(f.DefaultDirection))
		setKey(d, "allowed_columns", stringListValue(f.AllowedColumns))
		setKey(d, "allowed_directions", stringListValue(f.AllowedDirections))
		items = append(items, d)
	}
	return starlark.NewList(items)
}

func transformsValue(transforms []mapdoc.Transform) *starlark.List {
	items := make([]starlark.Value, 0, len(transforms))
	for _, tr := range transforms {
		d := starlark.NewDict(12)
		setKey(d, "target", starlark.String(tr.Target))
		setKey(d, "type", starlark.String(tr.Type))
		setKey(d, "source", starlark.String(tr.Source))
		setKey(d, "sources", stringListValue(tr.Sources))
		setKey(d, "fallback", starlark.String(tr.Fallback))
		setKey(d, "separator", starlark.String(tr.Separator))

		when := make([]starlark.Value, 0, len(tr.When))
		for _, w := range tr.When {
			wd := starlark.NewDict(2)
			setKey(wd, "value", starlark.String(w.Value))
			setKey(wd, "then", starlark.String(w.Then))
			when = append(when, wd)
		}
		setKey(d, "when", starlark.NewList(when))
		setKey(d, "else_value", starlark.String(tr.ElseValue))
		setKey(d, "mask_pattern", starlark.String(tr.MaskPattern))

		conds := make([]starlark.Value, 0, len(tr.Conditions))
		for _, c := range tr.Conditions {
			cd := starlark.NewDict(5)
			setKey(cd, "param", starlark.String(c.Param))
			setKey(cd, "field", starlark.String(c.Field))
			setKey(cd, "source", starlark.String(c.Source))
			setKey(cd, "operator", starlark.String(c.Operator))
			setKey(cd, "value", starlark.String(c.Value))
			conds = append(conds, cd)
		}
		setKey(d, "condition", starlark.NewList(conds))
		setKey(d, "then_source", starlark.String(tr.ThenSource))
		setKey(d, "else_source", starlark.String(tr.ElseSource))
		items = append(items, d)
	}
	return starlark.NewList(items)
}

func stringListValue(ss []string) *starlark.List {
	items := make([]starlark.Value, 0, len(ss))
	for _, s := range ss {
		items = append(items, starlark.String(s))
	}
	return starlark.NewList(items)
}

// setKey cannot fail on an unfrozen dict.
func setKey(d *starlark.Dict, key string, v starlark.Value) {
	_ = d.SetKey(starlark.String(key), v)
}
