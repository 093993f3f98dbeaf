package mapdoc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile reads and parses the mapping document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified documents
	if err != nil {
		return nil, &ParseError{File: path, Msg: fmt.Sprintf("read file: %v", err), Err: err}
	}
	return Parse(bytes.NewReader(data), path)
}

// Parse decodes and structurally validates a mapping document. The name is
// used in error messages only. Unknown keys, wrong value types, missing
// required fields, and malformed reference expressions are all ParseErrors;
// whether referenced tables or fields actually exist is not checked here.
func Parse(r io.Reader, name string) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{File: name, Msg: fmt.Sprintf("parse yaml: %v", err), Err: err}
	}

	if doc.Version != Version {
		return nil, parseErrorf(name, "invalid version: expected %q, got %q", Version, doc.Version)
	}
	if err := validateStructure(&doc, name); err != nil {
		return nil, err
	}
	if err := parseRefs(&doc, name); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Marshal serializes the document back to its wire form. Parsing the output
// yields a document structurally equal to the receiver.
func (d *Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return out, nil
}

// parseRefs derives the typed reference expressions from the import block.
func parseRefs(doc *Document, name string) error {
	api, err := ParseAPIRef(doc.Import.OpenAPI)
	if err != nil {
		return &ParseError{File: name, Msg: err.Error(), Err: err}
	}
	doc.API = api

	doc.Tables = make([]TableRef, 0, len(doc.Import.DBML))
	for _, raw := range doc.Import.DBML {
		ref, err := ParseTableRef(raw)
		if err != nil {
			return &ParseError{File: name, Msg: err.Error(), Err: err}
		}
		doc.Tables = append(doc.Tables, ref)
	}
	return nil
}

// validateStructure enforces the structural invariants of the document.
func validateStructure(doc *Document, name string) error {
	if doc.Import.OpenAPI == "" {
		return parseErrorf(name, "import.openapi is required")
	}
	if len(doc.Import.DBML) == 0 {
		return parseErrorf(name, "import.dbml must list at least one table reference")
	}
	if doc.Usecase.Name == "" {
		return parseErrorf(name, "usecase.name is required")
	}
	if len(doc.Usecase.ResponseMapping) == 0 {
		return parseErrorf(name, "usecase.response_mapping must not be empty")
	}

	if err := validateMappings(doc.Usecase.ResponseMapping, "response_mapping", name); err != nil {
		return err
	}
	for i := range doc.Usecase.Filters {
		if err := validateFilter(&doc.Usecase.Filters[i], name); err != nil {
			return err
		}
	}
	for i := range doc.Usecase.Transforms {
		if err := validateTransform(&doc.Usecase.Transforms[i], name); err != nil {
			return err
		}
	}
	return nil
}

// validateMappings checks one sibling group and recurses into array children.
func validateMappings(nodes []MappingNode, scope, name string) error {
	seen := make(map[string]bool, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.Field == "" {
			return parseErrorf(name, "%s[%d]: field is required", scope, i)
		}
		if seen[n.Field] {
			return parseErrorf(name, "%s: duplicate field %q", scope, n.Field)
		}
		seen[n.Field] = true

		if err := validateMapping(n, scope, name); err != nil {
			return err
		}
	}
	return nil
}

func validateMapping(n *MappingNode, scope, name string) error {
	where := scope + "." + n.Field

	switch n.Type {
	case "", KindArray:
	default:
		return parseErrorf(name, "%s: unknown mapping type %q", where, n.Type)
	}

	if n.IsArray() {
		if n.Source != "" {
			return parseErrorf(name, "%s: array mapping must not declare source", where)
		}
		if n.SourceTable == "" {
			return parseErrorf(name, "%s: array mapping requires source_table", where)
		}
		if len(n.Fields) == 0 {
			return parseErrorf(name, "%s: array mapping requires fields", where)
		}
	} else {
		if n.Source == "" {
			return parseErrorf(name, "%s: source is required", where)
		}
		if len(n.Fields) > 0 {
			return parseErrorf(name, "%s: fields are only allowed on array mappings", where)
		}
	}

	if n.Join != nil {
		if n.Join.Table == "" {
			return parseErrorf(name, "%s: join.table is required", where)
		}
		if n.Join.On == "" {
			return parseErrorf(name, "%s: join.on is required", where)
		}
		if _, ok := NormalizeJoinType(n.Join.Type); !ok {
			return parseErrorf(name, "%s: unknown join type %q", where, n.Join.Type)
		}
	}
	for i, link := range n.JoinChain {
		if link.Table == "" {
			return parseErrorf(name, "%s: join_chain[%d].table is required", where, i)
		}
		if link.On == "" {
			return parseErrorf(name, "%s: join_chain[%d].on is required", where, i)
		}
	}
	if n.Aggregate != nil {
		if _, ok := NormalizeAggregateType(n.Aggregate.Type); !ok {
			return parseErrorf(name, "%s: unknown aggregate type %q", where, n.Aggregate.Type)
		}
	}

	if n.IsArray() {
		return validateMappings(n.Fields, where, name)
	}
	return nil
}

func validateFilter(f *Filter, name string) error {
	if f.Param == "" {
		return parseErrorf(name, "filters: param is required")
	}
	where := "filters." + f.Param

	switch f.MapsTo {
	case MapsWhere:
		if f.Condition == "" {
			return parseErrorf(name, "%s: WHERE filter requires condition", where)
		}
	case MapsPagination:
		switch strings.ToLower(f.Strategy) {
		case StrategyOffset, StrategyCursor:
		default:
			return parseErrorf(name, "%s: unknown pagination strategy %q", where, f.Strategy)
		}
		if f.PageSize < 1 {
			return parseErrorf(name, "%s: PAGINATION filter requires page_size >= 1", where)
		}
	case MapsOrderBy:
		// All ORDER_BY knobs are optional; the allowlist relation between
		// default_column and allowed_columns is the validator's business.
	default:
		return parseErrorf(name, "%s: unknown maps_to %q", where, f.MapsTo)
	}
	return nil
}

func validateTransform(t *Transform, name string) error {
	if t.Target == "" {
		return parseErrorf(name, "transforms: target is required")
	}
	where := "transforms." + t.Target

	kind, ok := NormalizeTransformType(t.Type)
	if !ok {
		return parseErrorf(name, "%s: unknown transform type %q", where, t.Type)
	}
	switch kind {
	case TransformCoalesce, TransformConcat:
		if len(t.Sources) == 0 {
			return parseErrorf(name, "%s: %s transform requires sources", where, kind)
		}
	case TransformCase:
		if len(t.When) == 0 {
			return parseErrorf(name, "%s: CASE transform requires when branches", where)
		}
	case TransformMask:
		if t.Source == "" {
			return parseErrorf(name, "%s: MASK transform requires source", where)
		}
	case TransformConditionalSource:
		if t.ThenSource == "" {
			return parseErrorf(name, "%s: CONDITIONAL_SOURCE transform requires then_source", where)
		}
	}

	for i, c := range t.Conditions {
		if c.Param == "" && c.Field == "" && c.Source == "" {
			return parseErrorf(name, "%s: condition[%d] must name a param, field, or source", where, i)
		}
		if c.Operator == "" {
			return parseErrorf(name, "%s: condition[%d].operator is required", where, i)
		}
	}
	return nil
}

// NormalizeJoinType maps a wire join type to its normalized form. The empty
// string normalizes to LEFT JOIN.
func NormalizeJoinType(s string) (JoinType, bool) {
	t, ok := joinTypes[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// NormalizeAggregateType maps a wire aggregate type to its normalized form.
func NormalizeAggregateType(s string) (AggregateType, bool) {
	t, ok := aggregateTypes[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// NormalizeTransformType maps a wire transform type to its normalized form.
func NormalizeTransformType(s string) (TransformType, bool) {
	t, ok := transformTypes[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}
