package dbml

// Schema is a parsed DBML file.
type Schema struct {
	Project *Project
	Tables  []*Table
	Refs    []*Ref // standalone and inline refs, in declaration order
	Enums   []*Enum
	Groups  []*TableGroup
}

// Table returns the table with the given name or alias, or nil.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name || (t.Alias != "" && t.Alias == name) {
			return t
		}
	}
	return nil
}

// Project is the optional project header block.
type Project struct {
	Name         string
	DatabaseType string
	Note         string
}

// Table is one table declaration.
type Table struct {
	Name    string
	Alias   string
	Note    string
	Columns []*Column
	Indexes []*Index
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary-key column names in declaration order.
// Column-level pk attributes take precedence; a composite pk declared in an
// indexes block is used when no column carries pk.
func (t *Table) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PK {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) > 0 {
		return pk
	}
	for _, idx := range t.Indexes {
		if idx.PK {
			return idx.Columns
		}
	}
	return nil
}

// Column is one column declaration.
type Column struct {
	Name          string
	Type          string // raw type, size suffix included: varchar(255)
	PK            bool
	Unique        bool
	NotNull       bool
	Increment     bool
	Default       string
	DefaultIsExpr bool // default was a `...` function expression
	Note          string
}

// Index is one entry of an indexes block.
type Index struct {
	Columns []string
	Name    string
	Unique  bool
	PK      bool
}

// Ref is a foreign-key relation between two columns.
type Ref struct {
	Name        string
	Cardinality string // ">", "<", "-", "<>"
	From        ColumnRef
	To          ColumnRef
	OnDelete    string
	OnUpdate    string
}

// ColumnRef names one endpoint of a relation.
type ColumnRef struct {
	Table  string
	Column string
}

// Enum is an enum declaration.
type Enum struct {
	Name   string
	Values []string
}

// TableGroup is a named grouping of tables, used for diagram layout only.
type TableGroup struct {
	Name   string
	Tables []string
}
