package validate

import (
	"regexp"
	"slices"
	"strings"

	"fieldmap/internal/mapdoc"
)

// rule backs every built-in check: a stable identifier plus its check
// function.
type rule struct {
	id    string
	desc  string
	check func(rc *Context) []Diagnostic
}

func (r rule) ID() string                     { return r.id }
func (r rule) Description() string            { return r.desc }
func (r rule) Check(rc *Context) []Diagnostic { return r.check(rc) }

// builtinRules returns the twelve checks in their fixed execution order.
// Diagnostic order across a run follows this list; the identifiers are
// stable across releases.
func builtinRules() []Rule {
	return []Rule{
		rule{"field-schema-match", "top-level fields must exist in the API response schema", checkFieldSchemaMatch},
		rule{"table-coverage", "tables and columns named by sources must be imported", checkTableCoverage},
		rule{"join-table-imported", "joined tables must be imported", checkJoinTableImported},
		rule{"filter-param-declared", "filter params must be declared API parameters", checkFilterParamDeclared},
		rule{"transform-target-exists", "transform targets must match a mapped field", checkTransformTargetExists},
		rule{"join-condition-resolvable", "both sides of a join condition must resolve to real columns", checkJoinConditionResolvable},
		rule{"alias-required-on-conflict", "re-joining a table under a different condition requires an alias", checkAliasRequiredOnConflict},
		rule{"aggregate-group-by-resolvable", "aggregates need a group_by or a defaultable primary key", checkAggregateGroupByResolvable},
		rule{"filter-condition-params-declared", "condition placeholders must match declared filter params", checkFilterConditionParams},
		rule{"transform-when-param-declared", "transform condition params must be declared API parameters", checkTransformWhenParam},
		rule{"array-source-table-consistency", "an array's source_table must match the table its joins reach", checkArraySourceTable},
		rule{"sort-column-allowlisted", "the sort default_column must be in allowed_columns", checkSortColumnAllowlisted},
	}
}

// field-schema-match: every top-level field must appear in the resolved API
// response schema.
func checkFieldSchemaMatch(rc *Context) []Diagnostic {
	var ds []Diagnostic
	for i := range rc.Doc.Usecase.ResponseMapping {
		m := &rc.Doc.Usecase.ResponseMapping[i]
		if !rc.API.HasField(m.Field) {
			ds = append(ds, errorf("field-schema-match",
				"field %q is not declared in the API response schema", m.Field))
		}
	}
	return ds
}

// table-coverage: every table and column named by a source or source_table
// must be present in the imported table set. References resolve through the
// tree's symbol table, so alias-qualified sources check their physical
// table.
func checkTableCoverage(rc *Context) []Diagnostic {
	var ds []Diagnostic
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, scope *mapdoc.SymbolTable) {
		if node.IsArray() {
			if node.SourceTable == "" {
				return
			}
			if physical := scope.Resolve(node.SourceTable); !rc.Tables.HasTable(physical) {
				ds = append(ds, errorf("table-coverage",
					"source_table %q of array field %q is not imported", node.SourceTable, node.Field))
			}
			return
		}
		if node.Source == "" {
			return
		}
		table, column, ok := mapdoc.SplitSource(node.Source)
		if !ok {
			return
		}
		physical := scope.Resolve(table)
		switch {
		case !rc.Tables.HasTable(physical):
			ds = append(ds, errorf("table-coverage",
				"table %q referenced by field %q is not imported", table, node.Field))
		case !rc.Tables.HasColumn(physical, column):
			ds = append(ds, errorf("table-coverage",
				"column %q does not exist on imported table %q", column, physical))
		}
	})
	return ds
}

// join-table-imported: every physical table named by a join or join_chain
// entry must be imported. Aliases are irrelevant here; this is about the
// physical table.
func checkJoinTableImported(rc *Context) []Diagnostic {
	var ds []Diagnostic
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, _ *mapdoc.SymbolTable) {
		if node.Join != nil && !rc.Tables.HasTable(node.Join.Table) {
			ds = append(ds, errorf("join-table-imported",
				"join table %q is not imported", node.Join.Table))
		}
		for _, link := range node.JoinChain {
			if !rc.Tables.HasTable(link.Table) {
				ds = append(ds, errorf("join-table-imported",
					"join_chain table %q is not imported", link.Table))
			}
		}
	})
	return ds
}

// filter-param-declared: every filters[].param must be a parameter the API
// operation declares.
func checkFilterParamDeclared(rc *Context) []Diagnostic {
	var ds []Diagnostic
	for _, f := range rc.Doc.Usecase.Filters {
		if !rc.API.HasParameter(f.Param) {
			ds = append(ds, errorf("filter-param-declared",
				"filter param %q is not declared by the API operation", f.Param))
		}
	}
	return ds
}

// transform-target-exists: every transforms[].target must match a mapped
// field at some nesting depth.
func checkTransformTargetExists(rc *Context) []Diagnostic {
	names := rc.FieldNames()
	var ds []Diagnostic
	for _, tr := range rc.Doc.Usecase.Transforms {
		if !names[tr.Target] {
			ds = append(ds, errorf("transform-target-exists",
				"transform target %q does not match any mapped field", tr.Target))
		}
	}
	return ds
}

// join-condition-resolvable: both sides of every join.on and join_chain.on
// equality must resolve to a real table.column pair, substituting aliases
// through the tree's symbol table.
func checkJoinConditionResolvable(rc *Context) []Diagnostic {
	var ds []Diagnostic
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, scope *mapdoc.SymbolTable) {
		if node.Join != nil {
			ds = append(ds, rc.checkOn(scope, node.Join.On)...)
		}
		for _, link := range node.JoinChain {
			ds = append(ds, rc.checkOn(scope, link.On)...)
		}
	})
	return ds
}

func (rc *Context) checkOn(scope *mapdoc.SymbolTable, on string) []Diagnostic {
	left, right, ok := strings.Cut(on, "=")
	if !ok {
		return []Diagnostic{errorf("join-condition-resolvable",
			"join condition %q is not an equality", on)}
	}
	var ds []Diagnostic
	for _, side := range []string{strings.TrimSpace(left), strings.TrimSpace(right)} {
		table, column, ok := mapdoc.SplitSource(side)
		if !ok {
			ds = append(ds, errorf("join-condition-resolvable",
				"join condition side %q is not a table.column reference", side))
			continue
		}
		physical := scope.Resolve(table)
		switch {
		case !rc.Tables.HasTable(physical):
			ds = append(ds, errorf("join-condition-resolvable",
				"join condition references unknown table %q", table))
		case !rc.Tables.HasColumn(physical, column):
			ds = append(ds, errorf("join-condition-resolvable",
				"join condition references unknown column %q on table %q", column, physical))
		}
	}
	return ds
}

// alias-required-on-conflict: the first unaliased join of a table fixes its
// canonical condition; any later unaliased join of the same table under a
// different condition is an error. Aliased entries never conflict.
func checkAliasRequiredOnConflict(rc *Context) []Diagnostic {
	var ds []Diagnostic
	canonical := map[string]string{} // physical table -> first unaliased on
	visit := func(table, on, alias string) {
		if alias != "" {
			return
		}
		first, ok := canonical[table]
		if !ok {
			canonical[table] = on
			return
		}
		if first != on {
			ds = append(ds, errorf("alias-required-on-conflict",
				"table %q is joined again under a different condition; alias one of the joins", table))
		}
	}
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, _ *mapdoc.SymbolTable) {
		if node.Join != nil {
			visit(node.Join.Table, node.Join.On, node.Join.Alias)
		}
		for _, link := range node.JoinChain {
			visit(link.Table, link.On, link.Alias)
		}
	})
	return ds
}

// aggregate-group-by-resolvable: an explicit group_by must resolve to a
// real column; an omitted one defaults to the enclosing tree's root-table
// primary key, which must exist and be a single column.
func checkAggregateGroupByResolvable(rc *Context) []Diagnostic {
	var ds []Diagnostic
	roots := []string{rc.BaseTable()}
	rc.EachMapping(func(node *mapdoc.MappingNode, depth int, scope *mapdoc.SymbolTable) {
		roots = roots[:depth+1]
		root := roots[depth]
		if node.IsArray() {
			roots = append(roots, scope.Resolve(node.SourceTable))
		}

		if node.Aggregate == nil {
			return
		}
		if gb := node.Aggregate.GroupBy; gb != "" {
			table, column, ok := mapdoc.SplitSource(gb)
			if !ok {
				ds = append(ds, errorf("aggregate-group-by-resolvable",
					"group_by %q on field %q is not a table.column reference", gb, node.Field))
				return
			}
			physical := scope.Resolve(table)
			switch {
			case !rc.Tables.HasTable(physical):
				ds = append(ds, errorf("aggregate-group-by-resolvable",
					"group_by %q on field %q references an unimported table", gb, node.Field))
			case !rc.Tables.HasColumn(physical, column):
				ds = append(ds, errorf("aggregate-group-by-resolvable",
					"group_by %q on field %q references an unknown column", gb, node.Field))
			}
			return
		}

		t := rc.Tables.Table(root)
		switch {
		case t == nil:
			ds = append(ds, errorf("aggregate-group-by-resolvable",
				"aggregate on field %q omits group_by and no root table is available to default to", node.Field))
		case len(t.PrimaryKey) != 1:
			ds = append(ds, errorf("aggregate-group-by-resolvable",
				"aggregate on field %q omits group_by and root table %q has no single-column primary key to default to", node.Field, root))
		}
	})
	return ds
}

// paramPlaceholderRe matches :name placeholders inside filter conditions.
var paramPlaceholderRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// filter-condition-params-declared: every :placeholder inside a condition
// must match some filters[].param declared in the same document.
func checkFilterConditionParams(rc *Context) []Diagnostic {
	declared := map[string]bool{}
	for _, f := range rc.Doc.Usecase.Filters {
		declared[f.Param] = true
	}

	var ds []Diagnostic
	for _, f := range rc.Doc.Usecase.Filters {
		if f.Condition == "" {
			continue
		}
		for _, m := range paramPlaceholderRe.FindAllStringSubmatch(f.Condition, -1) {
			if !declared[m[1]] {
				ds = append(ds, errorf("filter-condition-params-declared",
					"condition %q references :%s, which no filter declares", f.Condition, m[1]))
			}
		}
	}
	return ds
}

// transform-when-param-declared: every param a transform condition gates on
// must be a parameter the API operation declares.
func checkTransformWhenParam(rc *Context) []Diagnostic {
	var ds []Diagnostic
	for _, tr := range rc.Doc.Usecase.Transforms {
		for _, cond := range tr.Conditions {
			if cond.Param == "" {
				continue
			}
			if !rc.API.HasParameter(cond.Param) {
				ds = append(ds, errorf("transform-when-param-declared",
					"transform %q condition references parameter %q, which the API operation does not declare", tr.Target, cond.Param))
			}
		}
	}
	return ds
}

// array-source-table-consistency: an array's source_table must equal the
// table its own joins actually reach, i.e. the join_chain tail when a chain
// exists, the join table otherwise.
func checkArraySourceTable(rc *Context) []Diagnostic {
	var ds []Diagnostic
	rc.EachMapping(func(node *mapdoc.MappingNode, _ int, scope *mapdoc.SymbolTable) {
		if !node.IsArray() || node.SourceTable == "" || node.Join == nil {
			return
		}
		actual := node.Join.Table
		if n := len(node.JoinChain); n > 0 {
			actual = node.JoinChain[n-1].Table
		}
		if scope.Resolve(node.SourceTable) != actual {
			ds = append(ds, errorf("array-source-table-consistency",
				"array field %q declares source_table %q but its joins reach %q", node.Field, node.SourceTable, actual))
		}
	})
	return ds
}

// sort-column-allowlisted: the runtime enforces the allowlist per request;
// statically we check that default_column itself is allowed when both knobs
// are present.
func checkSortColumnAllowlisted(rc *Context) []Diagnostic {
	var ds []Diagnostic
	for _, f := range rc.Doc.Usecase.Filters {
		if f.MapsTo != mapdoc.MapsOrderBy {
			continue
		}
		if f.DefaultColumn == "" || len(f.AllowedColumns) == 0 {
			continue
		}
		if !slices.Contains(f.AllowedColumns, f.DefaultColumn) {
			ds = append(ds, errorf("sort-column-allowlisted",
				"default_column %q is not in allowed_columns", f.DefaultColumn))
		}
	}
	return ds
}
