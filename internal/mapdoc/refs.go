package mapdoc

import (
	"fmt"
	"strings"
)

// APIRef addresses one operation response inside an OpenAPI document:
//
//	./api.yaml#paths["/users"].get.responses["200"]
//
// The responses segment is optional and defaults to status 200.
type APIRef struct {
	File   string
	Path   string
	Method string
	Status string
}

// String renders the reference in its canonical wire form.
func (r APIRef) String() string {
	return r.File + `#paths["` + r.Path + `"].` + r.Method + `.responses["` + r.Status + `"]`
}

// TableRef addresses a table, optionally narrowed to one column, inside a
// DBML schema file:
//
//	./schema.dbml#tables["users"]
//	./schema.dbml#tables["users"].columns["id"]
type TableRef struct {
	File   string
	Table  string
	Column string
}

// String renders the reference in its canonical wire form.
func (r TableRef) String() string {
	s := r.File + `#tables["` + r.Table + `"]`
	if r.Column != "" {
		s += `.columns["` + r.Column + `"]`
	}
	return s
}

// SplitSource splits a "table.column" source reference into its parts. The
// table part may be a join alias; callers resolve it through the tree's
// symbol table. Dotless references report ok false.
func SplitSource(ref string) (table, column string, ok bool) {
	table, column, ok = strings.Cut(ref, ".")
	if !ok || table == "" || column == "" {
		return "", "", false
	}
	return table, column, true
}

// methods enumerates the HTTP methods an APIRef may address.
var methods = map[string]bool{
	"get":    true,
	"post":   true,
	"put":    true,
	"delete": true,
	"patch":  true,
}

// ParseAPIRef parses an API reference expression.
func ParseAPIRef(ref string) (APIRef, error) {
	file, frag, ok := strings.Cut(ref, "#")
	if !ok || file == "" {
		return APIRef{}, fmt.Errorf("malformed API reference %q: missing #fragment", ref)
	}

	rest, ok := strings.CutPrefix(frag, `paths["`)
	if !ok {
		return APIRef{}, fmt.Errorf(`malformed API reference %q: fragment must start with paths["..."]`, ref)
	}
	path, rest, ok := strings.Cut(rest, `"].`)
	if !ok || path == "" {
		return APIRef{}, fmt.Errorf("malformed API reference %q: unterminated path segment", ref)
	}

	method, rest, hasStatus := strings.Cut(rest, `.responses["`)
	status := "200"
	if hasStatus {
		status, ok = strings.CutSuffix(rest, `"]`)
		if !ok || status == "" {
			return APIRef{}, fmt.Errorf("malformed API reference %q: unterminated responses segment", ref)
		}
	}
	if !methods[method] {
		return APIRef{}, fmt.Errorf("malformed API reference %q: unsupported method %q", ref, method)
	}

	return APIRef{File: file, Path: path, Method: method, Status: status}, nil
}

// ParseTableRef parses a table reference expression.
func ParseTableRef(ref string) (TableRef, error) {
	file, frag, ok := strings.Cut(ref, "#")
	if !ok || file == "" {
		return TableRef{}, fmt.Errorf("malformed table reference %q: missing #fragment", ref)
	}

	rest, ok := strings.CutPrefix(frag, `tables["`)
	if !ok {
		return TableRef{}, fmt.Errorf(`malformed table reference %q: fragment must start with tables["..."]`, ref)
	}

	table, colPart, hasColumn := strings.Cut(rest, `"].columns["`)
	if hasColumn {
		if table == "" {
			return TableRef{}, fmt.Errorf("malformed table reference %q: empty table name", ref)
		}
		column, ok := strings.CutSuffix(colPart, `"]`)
		if !ok || column == "" {
			return TableRef{}, fmt.Errorf("malformed table reference %q: unterminated columns segment", ref)
		}
		return TableRef{File: file, Table: table, Column: column}, nil
	}

	table, ok = strings.CutSuffix(rest, `"]`)
	if !ok || table == "" {
		return TableRef{}, fmt.Errorf("malformed table reference %q: unterminated table segment", ref)
	}
	return TableRef{File: file, Table: table}, nil
}
