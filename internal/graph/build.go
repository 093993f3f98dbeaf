package graph

import (
	"fmt"
	"slices"
	"strings"

	"fieldmap/internal/mapdoc"
)

// Build assembles the model for doc. Source and source_table references
// resolve through the same symbol table the validator uses, so aliased
// references point at their physical table and the alias surfaces on the
// table card instead. Table order is import order first, then first use.
func Build(doc *mapdoc.Document) *Model {
	b := &builder{
		transforms: transformsByTarget(doc.Usecase.Transforms),
		scopes:     map[*mapdoc.MappingNode]*mapdoc.SymbolTable{},
		seen:       map[string]bool{},
		counts:     map[string]int{},
		aliases:    map[string][]string{},
		aliasSeen:  map[aliasKey]bool{},
	}
	mapdoc.WalkMappings(doc.Usecase.ResponseMapping, func(node *mapdoc.MappingNode, _ int, scope *mapdoc.SymbolTable) {
		b.scopes[node] = scope
	})

	for _, ref := range doc.Tables {
		b.addTable(ref.Table)
	}
	fields := b.fields(doc.Usecase.ResponseMapping, 0)

	tables := make([]TableNode, 0, len(b.order))
	for _, name := range b.order {
		tables = append(tables, TableNode{
			Name:     name,
			Aliases:  b.aliases[name],
			RefCount: b.counts[name],
		})
	}

	return &Model{
		Usecase: doc.Usecase.Name,
		Summary: doc.Usecase.Summary,
		Fields:  fields,
		Tables:  tables,
	}
}

type aliasKey struct {
	table, alias string
}

type builder struct {
	transforms map[string][]string
	scopes     map[*mapdoc.MappingNode]*mapdoc.SymbolTable

	order     []string
	seen      map[string]bool
	counts    map[string]int
	aliases   map[string][]string
	aliasSeen map[aliasKey]bool
}

func (b *builder) fields(nodes []mapdoc.MappingNode, depth int) []FieldNode {
	out := make([]FieldNode, 0, len(nodes))
	for i := range nodes {
		out = append(out, b.field(&nodes[i], depth))
	}
	return out
}

func (b *builder) field(node *mapdoc.MappingNode, depth int) FieldNode {
	scope := b.scopes[node]

	fn := FieldNode{
		Name:       node.Field,
		Depth:      depth,
		Kind:       kindOf(node),
		Transforms: b.transforms[node.Field],
	}

	if node.Aggregate != nil {
		fn.Badges = append(fn.Badges, string(node.Aggregate.AggregateType()))
	}
	if node.IsArray() {
		fn.Badges = append(fn.Badges, "array")
	}

	if node.Join != nil {
		fn.JoinLines = append(fn.JoinLines, joinLine(node.Join))
	}
	if len(node.JoinChain) > 0 {
		fn.JoinLines = append(fn.JoinLines, chainLine(node.JoinChain))
	}

	// arrow targets: the physical tables this field's unit draws from
	if table, _, ok := mapdoc.SplitSource(node.Source); ok {
		fn.Tables = appendUnique(fn.Tables, scope.Resolve(table))
	}
	if node.Join != nil {
		fn.Tables = appendUnique(fn.Tables, node.Join.Table)
	}
	for _, link := range node.JoinChain {
		fn.Tables = appendUnique(fn.Tables, link.Table)
	}

	b.reference(node, scope)

	if len(node.Fields) > 0 {
		fn.Children = b.fields(node.Fields, depth+1)
	}
	return fn
}

// reference feeds the table cards: one count per touching field, first-use
// ordering, and any declared aliases.
func (b *builder) reference(node *mapdoc.MappingNode, scope *mapdoc.SymbolTable) {
	var touched []string
	if table, _, ok := mapdoc.SplitSource(node.Source); ok {
		touched = appendUnique(touched, scope.Resolve(table))
	}
	if node.SourceTable != "" {
		touched = appendUnique(touched, scope.Resolve(node.SourceTable))
	}
	if node.Join != nil {
		touched = appendUnique(touched, node.Join.Table)
		b.alias(node.Join.Table, node.Join.Alias)
	}
	for _, link := range node.JoinChain {
		touched = appendUnique(touched, link.Table)
		b.alias(link.Table, link.Alias)
	}

	for _, table := range touched {
		b.addTable(table)
		b.counts[table]++
	}
}

func (b *builder) addTable(name string) {
	if b.seen[name] {
		return
	}
	b.seen[name] = true
	b.order = append(b.order, name)
}

func (b *builder) alias(table, alias string) {
	if alias == "" {
		return
	}
	key := aliasKey{table, alias}
	if b.aliasSeen[key] {
		return
	}
	b.aliasSeen[key] = true
	b.aliases[table] = append(b.aliases[table], alias)
}

func kindOf(node *mapdoc.MappingNode) Kind {
	switch {
	case node.Aggregate != nil:
		return KindAggregate
	case len(node.JoinChain) > 0:
		return KindJoinChain
	case node.Join != nil:
		return KindJoin
	default:
		return KindSimple
	}
}

func joinLine(j *mapdoc.Join) string {
	line := fmt.Sprintf("%s %s ON %s", j.JoinType(), j.Table, j.On)
	if j.Alias != "" {
		line += " AS " + j.Alias
	}
	return line
}

func chainLine(links []mapdoc.JoinLink) string {
	parts := make([]string, 0, len(links))
	for _, link := range links {
		part := fmt.Sprintf("JOIN %s ON %s", link.Table, link.On)
		if link.Alias != "" {
			part += " AS " + link.Alias
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " → ")
}

func transformsByTarget(transforms []mapdoc.Transform) map[string][]string {
	m := map[string][]string{}
	for _, tr := range transforms {
		m[tr.Target] = append(m[tr.Target], string(tr.TransformType()))
	}
	return m
}

func appendUnique(ss []string, s string) []string {
	if slices.Contains(ss, s) {
		return ss
	}
	return append(ss, s)
}
