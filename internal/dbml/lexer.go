package dbml

import (
	"strings"
	"unicode"
)

// Lexer tokenizes DBML input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	var tok Token

	switch l.ch {
	case 0:
		tok.Type = TOKEN_EOF
		tok.Literal = ""
		return tok
	case '{':
		tok = Token{Type: TOKEN_LBRACE, Literal: "{"}
	case '}':
		tok = Token{Type: TOKEN_RBRACE, Literal: "}"}
	case '[':
		tok = Token{Type: TOKEN_LBRACKET, Literal: "["}
	case ']':
		tok = Token{Type: TOKEN_RBRACKET, Literal: "]"}
	case '(':
		tok = Token{Type: TOKEN_LPAREN, Literal: "("}
	case ')':
		tok = Token{Type: TOKEN_RPAREN, Literal: ")"}
	case ':':
		tok = Token{Type: TOKEN_COLON, Literal: ":"}
	case ',':
		tok = Token{Type: TOKEN_COMMA, Literal: ","}
	case '.':
		tok = Token{Type: TOKEN_DOT, Literal: "."}
	case '>':
		tok = Token{Type: TOKEN_GT, Literal: ">"}
	case '<':
		if l.peekChar() == '>' {
			l.readChar()
			tok = Token{Type: TOKEN_LTGT, Literal: "<>"}
		} else {
			tok = Token{Type: TOKEN_LT, Literal: "<"}
		}
	case '-':
		tok = Token{Type: TOKEN_DASH, Literal: "-"}
	case '\'':
		tok.Type = TOKEN_STRING
		tok.Literal = l.readString()
		return tok
	case '"':
		tok.Type = TOKEN_IDENT
		tok.Literal = l.readQuotedIdentifier()
		return tok
	case '`':
		tok.Type = TOKEN_FUNCEXPR
		tok.Literal = l.readFuncExpr()
		return tok
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			literal := l.readIdentifier()
			tok.Literal = literal
			tok.Type = lookupKeyword(strings.ToLower(literal))
			return tok
		case isDigit(l.ch):
			tok.Type = TOKEN_NUMBER
			tok.Literal = l.readNumber()
			return tok
		default:
			tok = Token{Type: TOKEN_ILLEGAL, Literal: string(l.ch)}
		}
	}

	l.readChar()
	return tok
}

// skipWhitespaceAndComments skips whitespace and DBML comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		// Line comment (// ...)
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		// Block comment (/* ... */)
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar() // skip /
			l.readChar() // skip *
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // skip *
					l.readChar() // skip /
					break
				}
				l.readChar()
			}
			continue
		}
		break
	}
}

// readString reads a single-quoted string literal. Triple-quoted multiline
// strings ('''...''') and the \' escape are handled.
func (l *Lexer) readString() string {
	if l.peekChar() == '\'' {
		l.readChar()
		if l.peekChar() == '\'' {
			return l.readTripleString()
		}
		// '' is the empty string
		l.readChar()
		return ""
	}

	l.readChar() // skip opening quote
	var result strings.Builder
	for l.ch != 0 && l.ch != '\'' {
		if l.ch == '\\' && l.peekChar() == '\'' {
			result.WriteByte('\'')
			l.readChar()
			l.readChar()
			continue
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar() // skip closing quote
	return result.String()
}

// readTripleString reads a '''...''' block. Called with the lexer on the
// second quote of the opening run.
func (l *Lexer) readTripleString() string {
	l.readChar() // second quote
	l.readChar() // third quote
	var result strings.Builder
	for l.ch != 0 {
		if l.ch == '\'' && l.peekChar() == '\'' {
			l.readChar()
			if l.peekChar() == '\'' {
				l.readChar()
				l.readChar()
				break
			}
			result.WriteByte('\'')
			continue
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
	return strings.TrimSpace(result.String())
}

// readQuotedIdentifier reads a double-quoted identifier.
func (l *Lexer) readQuotedIdentifier() string {
	l.readChar() // skip opening quote
	var result strings.Builder
	for l.ch != 0 && l.ch != '"' {
		result.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar() // skip closing quote
	return result.String()
}

// readFuncExpr reads a backtick-quoted function expression.
func (l *Lexer) readFuncExpr() string {
	l.readChar() // skip opening backtick
	var result strings.Builder
	for l.ch != 0 && l.ch != '`' {
		result.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar() // skip closing backtick
	return result.String()
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal.
func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip .
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
