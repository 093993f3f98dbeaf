// Package dbml provides a DBML (database markup language) parser, schema
// model, and formatter.
//
// It understands the constructs mapping documents reference: Project blocks,
// Table blocks with column attributes (pk, unique, not null, increment,
// default, note, inline ref), standalone Ref blocks with all cardinalities,
// composite-key indexes blocks, Enum blocks, and TableGroup blocks.
//
// The parser feeds the table-schema resolver; the formatter renders
// introspected live schemas back into DBML that this same parser accepts.
package dbml

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT    // identifier (bare or double-quoted)
	TOKEN_NUMBER   // 123, 45.67
	TOKEN_STRING   // 'hello' or '''multi line'''
	TOKEN_FUNCEXPR // `now()` (backtick function expression)

	TOKEN_LBRACE   // {
	TOKEN_RBRACE   // }
	TOKEN_LBRACKET // [
	TOKEN_RBRACKET // ]
	TOKEN_LPAREN   // (
	TOKEN_RPAREN   // )
	TOKEN_COLON    // :
	TOKEN_COMMA    // ,
	TOKEN_DOT      // .
	TOKEN_GT       // > (many-to-one)
	TOKEN_LT       // < (one-to-many)
	TOKEN_DASH     // - (one-to-one)
	TOKEN_LTGT     // <> (many-to-many)

	// TOKEN_PROJECT and below are DBML keywords.
	TOKEN_PROJECT
	TOKEN_TABLE
	TOKEN_REF
	TOKEN_ENUM
	TOKEN_INDEXES
	TOKEN_NOTE
	TOKEN_AS
	TOKEN_TABLEGROUP
)

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// tokenNames maps token types to their string representations.
var tokenNames = map[TokenType]string{
	TOKEN_EOF:      "EOF",
	TOKEN_ILLEGAL:  "ILLEGAL",
	TOKEN_IDENT:    "IDENT",
	TOKEN_NUMBER:   "NUMBER",
	TOKEN_STRING:   "STRING",
	TOKEN_FUNCEXPR: "FUNCEXPR",

	TOKEN_LBRACE:   "{",
	TOKEN_RBRACE:   "}",
	TOKEN_LBRACKET: "[",
	TOKEN_RBRACKET: "]",
	TOKEN_LPAREN:   "(",
	TOKEN_RPAREN:   ")",
	TOKEN_COLON:    ":",
	TOKEN_COMMA:    ",",
	TOKEN_DOT:      ".",
	TOKEN_GT:       ">",
	TOKEN_LT:       "<",
	TOKEN_DASH:     "-",
	TOKEN_LTGT:     "<>",

	TOKEN_PROJECT:    "Project",
	TOKEN_TABLE:      "Table",
	TOKEN_REF:        "Ref",
	TOKEN_ENUM:       "Enum",
	TOKEN_INDEXES:    "indexes",
	TOKEN_NOTE:       "Note",
	TOKEN_AS:         "as",
	TOKEN_TABLEGROUP: "TableGroup",
}

// keywords maps lowercase keyword strings to their token types. DBML
// keywords are case-insensitive block introducers; attribute names like pk
// or unique stay plain identifiers because they are only meaningful inside
// bracket settings.
var keywords = map[string]TokenType{
	"project":    TOKEN_PROJECT,
	"table":      TOKEN_TABLE,
	"ref":        TOKEN_REF,
	"enum":       TOKEN_ENUM,
	"indexes":    TOKEN_INDEXES,
	"note":       TOKEN_NOTE,
	"as":         TOKEN_AS,
	"tablegroup": TOKEN_TABLEGROUP,
}

// lookupKeyword returns the token type for the given lowercase identifier.
// Returns TOKEN_IDENT if it's not a keyword.
func lookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// Token represents a lexical token with its literal value.
type Token struct {
	Type    TokenType
	Literal string
}
