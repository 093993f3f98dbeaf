package dbml

import (
	"regexp"
	"strings"
)

// Format renders a schema back to DBML text. The output re-parses into an
// equivalent schema; inline refs are emitted as standalone Ref lines.
func Format(schema *Schema) string {
	f := &formatter{}
	f.formatSchema(schema)
	return f.buf.String()
}

// formatter is a simple DBML string builder.
type formatter struct {
	buf strings.Builder
}

func (f *formatter) write(s string) {
	f.buf.WriteString(s)
}

func (f *formatter) line(s string) {
	f.buf.WriteString(s)
	f.buf.WriteByte('\n')
}

func (f *formatter) formatSchema(schema *Schema) {
	first := true
	sep := func() {
		if !first {
			f.write("\n")
		}
		first = false
	}

	if schema.Project != nil {
		sep()
		f.formatProject(schema.Project)
	}
	for _, t := range schema.Tables {
		sep()
		f.formatTable(t)
	}
	for _, r := range schema.Refs {
		sep()
		f.formatRef(r)
	}
	for _, e := range schema.Enums {
		sep()
		f.formatEnum(e)
	}
	for _, g := range schema.Groups {
		sep()
		f.formatGroup(g)
	}
}

func (f *formatter) formatProject(p *Project) {
	f.line("Project " + quoteIdent(p.Name) + " {")
	if p.DatabaseType != "" {
		f.line("  database_type: " + quoteString(p.DatabaseType))
	}
	if p.Note != "" {
		f.line("  Note: " + quoteString(p.Note))
	}
	f.line("}")
}

func (f *formatter) formatTable(t *Table) {
	header := "Table " + quoteIdent(t.Name)
	if t.Alias != "" {
		header += " as " + quoteIdent(t.Alias)
	}
	f.line(header + " {")
	for _, c := range t.Columns {
		f.formatColumn(c)
	}
	if len(t.Indexes) > 0 {
		f.line("")
		f.line("  indexes {")
		for _, idx := range t.Indexes {
			f.formatIndex(idx)
		}
		f.line("  }")
	}
	if t.Note != "" {
		f.line("")
		f.line("  Note: " + quoteString(t.Note))
	}
	f.line("}")
}

func (f *formatter) formatColumn(c *Column) {
	var attrs []string
	if c.PK {
		attrs = append(attrs, "pk")
	}
	if c.Increment {
		attrs = append(attrs, "increment")
	}
	if c.Unique {
		attrs = append(attrs, "unique")
	}
	if c.NotNull {
		attrs = append(attrs, "not null")
	}
	if c.Default != "" {
		attrs = append(attrs, "default: "+formatDefault(c))
	}
	if c.Note != "" {
		attrs = append(attrs, "note: "+quoteString(c.Note))
	}

	line := "  " + quoteIdent(c.Name) + " " + quoteType(c.Type)
	if len(attrs) > 0 {
		line += " [" + strings.Join(attrs, ", ") + "]"
	}
	f.line(line)
}

func (f *formatter) formatIndex(idx *Index) {
	var target string
	if len(idx.Columns) == 1 {
		target = quoteIdent(idx.Columns[0])
	} else {
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = quoteIdent(c)
		}
		target = "(" + strings.Join(quoted, ", ") + ")"
	}

	var settings []string
	if idx.PK {
		settings = append(settings, "pk")
	}
	if idx.Unique {
		settings = append(settings, "unique")
	}
	if idx.Name != "" {
		settings = append(settings, "name: "+quoteString(idx.Name))
	}

	line := "    " + target
	if len(settings) > 0 {
		line += " [" + strings.Join(settings, ", ") + "]"
	}
	f.line(line)
}

func (f *formatter) formatRef(r *Ref) {
	line := "Ref:"
	if r.Name != "" {
		line = "Ref " + quoteIdent(r.Name) + ":"
	}
	line += " " + r.From.Table + "." + r.From.Column +
		" " + r.Cardinality +
		" " + r.To.Table + "." + r.To.Column

	var settings []string
	if r.OnDelete != "" {
		settings = append(settings, "delete: "+r.OnDelete)
	}
	if r.OnUpdate != "" {
		settings = append(settings, "update: "+r.OnUpdate)
	}
	if len(settings) > 0 {
		line += " [" + strings.Join(settings, ", ") + "]"
	}
	f.line(line)
}

func (f *formatter) formatEnum(e *Enum) {
	f.line("Enum " + quoteIdent(e.Name) + " {")
	for _, v := range e.Values {
		f.line("  " + quoteIdent(v))
	}
	f.line("}")
}

func (f *formatter) formatGroup(g *TableGroup) {
	f.line("TableGroup " + quoteIdent(g.Name) + " {")
	for _, t := range g.Tables {
		f.line("  " + quoteIdent(t))
	}
	f.line("}")
}

// identPattern matches names that need no quoting.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// typePattern matches type tokens that need no quoting, size suffix included.
var typePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\([^()]*\))?$`)

// bareDefaultPattern matches defaults that render without quotes.
var bareDefaultPattern = regexp.MustCompile(`^(-?[0-9]+(\.[0-9]+)?|true|false|null)$`)

// quoteIdent double-quotes an identifier when it needs it.
func quoteIdent(s string) string {
	if identPattern.MatchString(s) {
		return s
	}
	return `"` + s + `"`
}

// quoteType double-quotes a column type that the lexer would split, such as
// "double precision" or "integer[]".
func quoteType(s string) string {
	if typePattern.MatchString(s) {
		return s
	}
	return `"` + s + `"`
}

// quoteString single-quotes a string value.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// formatDefault renders a column default in its source form.
func formatDefault(c *Column) string {
	if c.DefaultIsExpr {
		return "`" + c.Default + "`"
	}
	if bareDefaultPattern.MatchString(strings.ToLower(c.Default)) {
		return c.Default
	}
	return quoteString(c.Default)
}
