package dbml

import (
	"fmt"
	"strings"
)

// Parser parses DBML into a Schema.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	errors []error
}

// NewParser creates a new parser for the given DBML input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Initialize two-token lookahead
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the DBML input and returns the schema.
// Returns the first error encountered if parsing fails.
func Parse(input string) (*Schema, error) {
	p := NewParser(input)
	schema := p.parseSchema()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return schema, nil
}

func (p *Parser) parseSchema() *Schema {
	schema := &Schema{}
	for !p.check(TOKEN_EOF) {
		switch p.token.Type {
		case TOKEN_PROJECT:
			schema.Project = p.parseProject()
		case TOKEN_TABLE:
			if t := p.parseTable(schema); t != nil {
				schema.Tables = append(schema.Tables, t)
			}
		case TOKEN_REF:
			p.parseStandaloneRef(schema)
		case TOKEN_ENUM:
			if e := p.parseEnum(); e != nil {
				schema.Enums = append(schema.Enums, e)
			}
		case TOKEN_TABLEGROUP:
			if g := p.parseTableGroup(); g != nil {
				schema.Groups = append(schema.Groups, g)
			}
		default:
			p.addError(fmt.Sprintf("unexpected token at top level: %s", p.token.Type))
		}
		if len(p.errors) > 0 {
			return schema
		}
	}
	return schema
}

// === Token Helpers ===

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected token %s, expected %s", p.token.Type, t))
	return false
}

// addError adds a parse error.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Errorf("parse error: %s", msg))
}

// failed reports whether any error has been recorded.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// === Blocks ===

// parseProject parses: Project name { database_type: '...' Note: '...' }
func (p *Parser) parseProject() *Project {
	p.nextToken() // consume Project
	proj := &Project{}
	if p.check(TOKEN_IDENT) {
		proj.Name = p.token.Literal
		p.nextToken()
	}
	if !p.expect(TOKEN_LBRACE) {
		return nil
	}
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
		switch p.token.Type {
		case TOKEN_NOTE:
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return nil
			}
			proj.Note = p.parseValue()
		case TOKEN_IDENT:
			key := strings.ToLower(p.token.Literal)
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return nil
			}
			value := p.parseValue()
			if key == "database_type" {
				proj.DatabaseType = value
			}
		default:
			p.addError(fmt.Sprintf("unexpected token in Project block: %s", p.token.Type))
			return nil
		}
	}
	p.expect(TOKEN_RBRACE)
	return proj
}

// parseTable parses: Table name [as Alias] { columns... }
// Inline refs found in column attributes are appended to schema.Refs.
func (p *Parser) parseTable(schema *Schema) *Table {
	p.nextToken() // consume Table
	table := &Table{}

	table.Name = p.parseQualifiedName()
	if table.Name == "" {
		p.addError("Table requires a name")
		return nil
	}
	if p.match(TOKEN_AS) {
		if !p.check(TOKEN_IDENT) {
			p.addError("table alias requires a name")
			return nil
		}
		table.Alias = p.token.Literal
		p.nextToken()
	}
	if !p.expect(TOKEN_LBRACE) {
		return nil
	}

	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
		switch p.token.Type {
		case TOKEN_NOTE:
			table.Note = p.parseNoteEntry()
		case TOKEN_INDEXES:
			p.parseIndexes(table)
		case TOKEN_IDENT:
			if c := p.parseColumn(schema, table); c != nil {
				table.Columns = append(table.Columns, c)
			}
		default:
			p.addError(fmt.Sprintf("unexpected token in Table %s: %s", table.Name, p.token.Type))
			return table
		}
	}
	p.expect(TOKEN_RBRACE)
	return table
}

// parseNoteEntry parses: Note: 'text'  or  Note { 'text' }
func (p *Parser) parseNoteEntry() string {
	p.nextToken() // consume Note
	if p.match(TOKEN_LBRACE) {
		note := p.parseValue()
		p.expect(TOKEN_RBRACE)
		return note
	}
	if !p.expect(TOKEN_COLON) {
		return ""
	}
	return p.parseValue()
}

// parseColumn parses: name type[(args)] [attribute, ...]
func (p *Parser) parseColumn(schema *Schema, table *Table) *Column {
	col := &Column{Name: p.token.Literal}
	p.nextToken()

	if !p.check(TOKEN_IDENT) {
		p.addError(fmt.Sprintf("column %s.%s requires a type", table.Name, col.Name))
		return nil
	}
	col.Type = p.token.Literal
	p.nextToken()
	if p.check(TOKEN_LPAREN) {
		col.Type += p.parseTypeArgs()
	}

	if p.match(TOKEN_LBRACKET) {
		p.parseColumnAttributes(schema, table, col)
	}
	return col
}

// parseTypeArgs consumes (...) after a type name and returns its raw text.
func (p *Parser) parseTypeArgs() string {
	var sb strings.Builder
	sb.WriteByte('(')
	p.nextToken() // consume (
	for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
		if p.check(TOKEN_COMMA) {
			sb.WriteByte(',')
		} else {
			sb.WriteString(p.token.Literal)
		}
		p.nextToken()
	}
	sb.WriteByte(')')
	p.expect(TOKEN_RPAREN)
	return sb.String()
}

// parseColumnAttributes parses the bracketed attribute list of a column.
// The opening bracket is already consumed.
func (p *Parser) parseColumnAttributes(schema *Schema, table *Table, col *Column) {
	for !p.check(TOKEN_RBRACKET) && !p.check(TOKEN_EOF) && !p.failed() {
		switch p.token.Type {
		case TOKEN_REF:
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return
			}
			card := p.parseCardinality()
			to := p.parseColumnRef()
			schema.Refs = append(schema.Refs, &Ref{
				Cardinality: card,
				From:        ColumnRef{Table: table.Name, Column: col.Name},
				To:          to,
			})
		case TOKEN_NOTE:
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return
			}
			col.Note = p.parseValue()
		case TOKEN_IDENT:
			word := strings.ToLower(p.token.Literal)
			switch word {
			case "pk":
				col.PK = true
				p.nextToken()
			case "primary":
				p.nextToken()
				p.matchSoftKeyword("key")
				col.PK = true
			case "unique":
				col.Unique = true
				p.nextToken()
			case "increment":
				col.Increment = true
				p.nextToken()
			case "not":
				p.nextToken()
				p.matchSoftKeyword("null")
				col.NotNull = true
			case "null":
				col.NotNull = false
				p.nextToken()
			case "default":
				p.nextToken()
				if !p.expect(TOKEN_COLON) {
					return
				}
				col.Default, col.DefaultIsExpr = p.parseDefaultValue()
			default:
				p.addError(fmt.Sprintf("unknown column attribute %q on %s.%s", p.token.Literal, table.Name, col.Name))
				return
			}
		default:
			p.addError(fmt.Sprintf("unexpected token in column attributes: %s", p.token.Type))
			return
		}
		p.match(TOKEN_COMMA)
	}
	p.expect(TOKEN_RBRACKET)
}

// parseIndexes parses: indexes { (a, b) [pk] \n email [unique] ... }
func (p *Parser) parseIndexes(table *Table) {
	p.nextToken() // consume indexes
	if !p.expect(TOKEN_LBRACE) {
		return
	}
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
		idx := &Index{}
		switch p.token.Type {
		case TOKEN_LPAREN:
			p.nextToken()
			for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
				if p.check(TOKEN_IDENT) {
					idx.Columns = append(idx.Columns, p.token.Literal)
				}
				p.nextToken()
			}
			p.expect(TOKEN_RPAREN)
		case TOKEN_IDENT, TOKEN_FUNCEXPR:
			idx.Columns = []string{p.token.Literal}
			p.nextToken()
		default:
			p.addError(fmt.Sprintf("unexpected token in indexes block: %s", p.token.Type))
			return
		}

		if p.match(TOKEN_LBRACKET) {
			p.parseIndexSettings(idx)
		}
		table.Indexes = append(table.Indexes, idx)
	}
	p.expect(TOKEN_RBRACE)
}

// parseIndexSettings parses the bracketed settings of one index entry.
// The opening bracket is already consumed.
func (p *Parser) parseIndexSettings(idx *Index) {
	for !p.check(TOKEN_RBRACKET) && !p.check(TOKEN_EOF) && !p.failed() {
		switch strings.ToLower(p.token.Literal) {
		case "pk":
			idx.PK = true
			p.nextToken()
		case "unique":
			idx.Unique = true
			p.nextToken()
		case "name":
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return
			}
			idx.Name = p.parseValue()
		case "type":
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return
			}
			p.parseValue() // index type is irrelevant here
		default:
			p.addError(fmt.Sprintf("unknown index setting %q", p.token.Literal))
			return
		}
		p.match(TOKEN_COMMA)
	}
	p.expect(TOKEN_RBRACKET)
}

// parseStandaloneRef parses:
//
//	Ref: a.b > c.d
//	Ref name: a.b > c.d [delete: cascade]
//	Ref { a.b > c.d }
func (p *Parser) parseStandaloneRef(schema *Schema) {
	p.nextToken() // consume Ref
	name := ""
	if p.check(TOKEN_IDENT) {
		name = p.token.Literal
		p.nextToken()
	}

	if p.match(TOKEN_LBRACE) {
		for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
			if r := p.parseRelation(name); r != nil {
				schema.Refs = append(schema.Refs, r)
			}
		}
		p.expect(TOKEN_RBRACE)
		return
	}

	if !p.expect(TOKEN_COLON) {
		return
	}
	if r := p.parseRelation(name); r != nil {
		schema.Refs = append(schema.Refs, r)
	}
}

// parseRelation parses: a.b > c.d [delete: cascade, update: no action]
func (p *Parser) parseRelation(name string) *Ref {
	from := p.parseColumnRef()
	card := p.parseCardinality()
	to := p.parseColumnRef()
	if p.failed() {
		return nil
	}
	ref := &Ref{Name: name, Cardinality: card, From: from, To: to}

	if p.match(TOKEN_LBRACKET) {
		for !p.check(TOKEN_RBRACKET) && !p.check(TOKEN_EOF) && !p.failed() {
			key := strings.ToLower(p.token.Literal)
			p.nextToken()
			if !p.expect(TOKEN_COLON) {
				return ref
			}
			value := p.parseRefAction()
			switch key {
			case "delete":
				ref.OnDelete = value
			case "update":
				ref.OnUpdate = value
			}
			p.match(TOKEN_COMMA)
		}
		p.expect(TOKEN_RBRACKET)
	}
	return ref
}

// parseRefAction reads a possibly multi-word action like "no action".
func (p *Parser) parseRefAction() string {
	var words []string
	for p.check(TOKEN_IDENT) {
		words = append(words, p.token.Literal)
		p.nextToken()
	}
	return strings.Join(words, " ")
}

// parseCardinality reads one of >, <, -, <>.
func (p *Parser) parseCardinality() string {
	switch p.token.Type {
	case TOKEN_GT, TOKEN_LT, TOKEN_DASH, TOKEN_LTGT:
		card := p.token.Literal
		p.nextToken()
		return card
	}
	p.addError(fmt.Sprintf("expected relation cardinality (>, <, -, <>), got %s", p.token.Type))
	return ""
}

// parseColumnRef reads table.column, tolerating a schema qualifier.
func (p *Parser) parseColumnRef() ColumnRef {
	var parts []string
	for p.check(TOKEN_IDENT) {
		parts = append(parts, p.token.Literal)
		p.nextToken()
		if !p.match(TOKEN_DOT) {
			break
		}
	}
	if len(parts) < 2 {
		p.addError("expected table.column reference")
		return ColumnRef{}
	}
	return ColumnRef{
		Table:  strings.Join(parts[:len(parts)-1], "."),
		Column: parts[len(parts)-1],
	}
}

// parseEnum parses: Enum name { value [note: '...'] ... }
func (p *Parser) parseEnum() *Enum {
	p.nextToken() // consume Enum
	if !p.check(TOKEN_IDENT) {
		p.addError("Enum requires a name")
		return nil
	}
	e := &Enum{Name: p.token.Literal}
	p.nextToken()
	if !p.expect(TOKEN_LBRACE) {
		return nil
	}
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf("unexpected token in Enum %s: %s", e.Name, p.token.Type))
			return e
		}
		e.Values = append(e.Values, p.token.Literal)
		p.nextToken()
		if p.match(TOKEN_LBRACKET) {
			p.skipBracketSettings()
		}
	}
	p.expect(TOKEN_RBRACE)
	return e
}

// parseTableGroup parses: TableGroup name { table1 table2 }
func (p *Parser) parseTableGroup() *TableGroup {
	p.nextToken() // consume TableGroup
	g := &TableGroup{}
	if p.check(TOKEN_IDENT) {
		g.Name = p.token.Literal
		p.nextToken()
	}
	if !p.expect(TOKEN_LBRACE) {
		return nil
	}
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) && !p.failed() {
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf("unexpected token in TableGroup: %s", p.token.Type))
			return g
		}
		g.Tables = append(g.Tables, p.parseQualifiedName())
	}
	p.expect(TOKEN_RBRACE)
	return g
}

// skipBracketSettings consumes tokens until the closing bracket. Used for
// settings that carry no schema information (enum value notes).
func (p *Parser) skipBracketSettings() {
	for !p.check(TOKEN_RBRACKET) && !p.check(TOKEN_EOF) {
		p.nextToken()
	}
	p.expect(TOKEN_RBRACKET)
}

// parseQualifiedName reads name or schema.name and returns the dotted form.
func (p *Parser) parseQualifiedName() string {
	if !p.check(TOKEN_IDENT) {
		return ""
	}
	name := p.token.Literal
	p.nextToken()
	for p.check(TOKEN_DOT) && p.checkPeek(TOKEN_IDENT) {
		p.nextToken()
		name += "." + p.token.Literal
		p.nextToken()
	}
	return name
}

// matchSoftKeyword consumes the current token if it's an identifier matching
// the given soft keyword (case-insensitive).
func (p *Parser) matchSoftKeyword(keyword string) bool {
	if p.check(TOKEN_IDENT) && strings.EqualFold(p.token.Literal, keyword) {
		p.nextToken()
		return true
	}
	return false
}

// parseValue reads a scalar value token (string, number, ident, or function
// expression) and returns its literal.
func (p *Parser) parseValue() string {
	switch p.token.Type {
	case TOKEN_STRING, TOKEN_NUMBER, TOKEN_IDENT, TOKEN_FUNCEXPR:
		v := p.token.Literal
		p.nextToken()
		return v
	}
	p.addError(fmt.Sprintf("expected a value, got %s", p.token.Type))
	return ""
}

// parseDefaultValue reads a default value, reporting whether it was a
// backtick function expression. A leading minus sign is folded into numeric
// defaults.
func (p *Parser) parseDefaultValue() (string, bool) {
	if p.check(TOKEN_FUNCEXPR) {
		v := p.token.Literal
		p.nextToken()
		return v, true
	}
	if p.check(TOKEN_DASH) && p.checkPeek(TOKEN_NUMBER) {
		p.nextToken()
		v := "-" + p.token.Literal
		p.nextToken()
		return v, false
	}
	return p.parseValue(), false
}
