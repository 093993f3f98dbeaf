package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fieldmap/internal/dbml"
	"fieldmap/internal/fetch"
	"fieldmap/internal/mapdoc"
)

// Table is one projected table: its columns in declared order and its
// primary key.
type Table struct {
	Name       string
	Columns    []string
	PrimaryKey []string

	columns map[string]bool
}

// NewTable builds a projected table from its full column list.
func NewTable(name string, columns, primaryKey []string) *Table {
	t := &Table{Name: name, Columns: columns, PrimaryKey: primaryKey, columns: map[string]bool{}}
	for _, c := range columns {
		t.columns[c] = true
	}
	return t
}

// HasColumn reports whether the projection contains the given column.
func (t *Table) HasColumn(name string) bool {
	return t.columns[name]
}

// ForeignKey is one foreign-key edge between two projected tables.
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// TableSchema is the aggregate of every table reference a document imports:
// the projected tables plus the foreign-key edges connecting them. Read-only
// after resolution.
type TableSchema struct {
	Tables      map[string]*Table
	ForeignKeys []ForeignKey
}

// Table returns the projected table with the given name, or nil.
func (s *TableSchema) Table(name string) *Table {
	return s.Tables[name]
}

// HasTable reports whether the given table was imported.
func (s *TableSchema) HasTable(name string) bool {
	_, ok := s.Tables[name]
	return ok
}

// HasColumn reports whether the given table was imported with the given
// column.
func (s *TableSchema) HasColumn(table, column string) bool {
	t, ok := s.Tables[table]
	return ok && t.HasColumn(column)
}

// TableNames returns the projected table names in sorted order.
func (s *TableSchema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableResolver resolves table references against DBML schema files.
type TableResolver struct {
	source *fetch.Source

	mu    sync.Mutex
	cache map[string]*dbml.Schema
}

// NewTableResolver creates an empty resolver reading local files only.
// Parsed files are cached for the resolver's lifetime.
func NewTableResolver() *TableResolver {
	return NewTableResolverWithSource(fetch.Local())
}

// NewTableResolverWithSource creates a resolver reading through the given
// schema source.
func NewTableResolverWithSource(source *fetch.Source) *TableResolver {
	return &TableResolver{source: source, cache: make(map[string]*dbml.Schema)}
}

// Resolve parses each referenced schema file once, then projects out the
// referenced tables. A bare table reference imports every column; a
// column-qualified reference imports that column and asserts it exists.
// Foreign-key edges are retained when both endpoint tables are imported.
func (r *TableResolver) Resolve(ctx context.Context, baseDir string, refs []mapdoc.TableRef) (*TableSchema, error) {
	out := &TableSchema{Tables: map[string]*Table{}}

	type source struct {
		schema *dbml.Schema
		file   string
	}
	var sources []source
	seen := map[string]bool{}

	for _, ref := range refs {
		schema, err := r.load(ctx, r.source.Abs(baseDir, ref.File))
		if err != nil {
			return nil, err
		}
		if !seen[ref.File] {
			seen[ref.File] = true
			sources = append(sources, source{schema: schema, file: ref.File})
		}

		decl := schema.Table(ref.Table)
		if decl == nil {
			return nil, resolutionErrorf(ref.File, "table %q not found", ref.Table)
		}
		if ref.Column != "" && decl.Column(ref.Column) == nil {
			return nil, resolutionErrorf(ref.File, "column %q not found on table %q", ref.Column, ref.Table)
		}

		t, ok := out.Tables[decl.Name]
		if !ok {
			t = &Table{
				Name:       decl.Name,
				PrimaryKey: decl.PrimaryKey(),
				columns:    map[string]bool{},
			}
			out.Tables[decl.Name] = t
		}
		if ref.Column != "" {
			t.columns[ref.Column] = true
		} else {
			for _, name := range decl.ColumnNames() {
				t.columns[name] = true
			}
		}
		// rebuild Columns in declared order from the projected set
		t.Columns = t.Columns[:0]
		for _, name := range decl.ColumnNames() {
			if t.columns[name] {
				t.Columns = append(t.Columns, name)
			}
		}
	}

	for _, src := range sources {
		for _, ref := range src.schema.Refs {
			if !out.HasTable(ref.From.Table) || !out.HasTable(ref.To.Table) {
				continue
			}
			out.ForeignKeys = append(out.ForeignKeys, ForeignKey{
				FromTable:  ref.From.Table,
				FromColumn: ref.From.Column,
				ToTable:    ref.To.Table,
				ToColumn:   ref.To.Column,
			})
		}
	}
	return out, nil
}

// load parses the DBML file at path, serving repeats from cache.
func (r *TableResolver) load(ctx context.Context, path string) (*dbml.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if schema, ok := r.cache[path]; ok {
		return schema, nil
	}

	data, err := r.source.Read(ctx, path)
	if err != nil {
		return nil, &ResolutionError{File: path, Msg: fmt.Sprintf("read schema file: %v", err), Err: err}
	}
	schema, err := dbml.Parse(string(data))
	if err != nil {
		return nil, &ResolutionError{File: path, Msg: fmt.Sprintf("parse DBML: %v", err), Err: err}
	}
	r.cache[path] = schema
	return schema, nil
}
