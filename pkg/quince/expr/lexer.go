package expr

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Identifiers and literals
	IDENT  // items, user, x
	INT    // 1343456
	FLOAT  // 3.14159
	STRING // "text" or 'text'

	// Operators
	PLUS     // +
	MINUS    // -
	BANG     // !
	ASTERISK // *
	SLASH    // /
	PERCENT  // %
	LT       // <
	GT       // >
	LTE      // <=
	GTE      // >=
	EQ       // ==
	NOT_EQ   // !=
	AND      // &&
	OR       // ||

	// Delimiters
	COMMA    // ,
	DOT      // .
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Keywords
	TRUE_TOK  // "true"
	FALSE_TOK // "false"
	NULL_TOK  // "null"
)

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %d, Literal: %s, Line: %d, Column: %d}", t.Type, t.Literal, t.Line, t.Column)
}

var keywords = map[string]TokenType{
	"true":  TRUE_TOK,
	"false": FALSE_TOK,
	"null":  NULL_TOK,
	"and":   AND,
	"or":    OR,
	"not":   BANG,
}

// Lexer tokenizes databinding expression text
type Lexer struct {
	input        string
	position     int  // current position in input (points to current rune)
	readPosition int  // current reading position (after current rune)
	ch           rune // current rune under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer for the given expression text
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readRune()
	return l
}

func (l *Lexer) readRune() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		return
	}
	r, width := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += width
	if r == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// NextToken returns the next token in the input
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Line: l.line, Column: l.column}

	switch l.ch {
	case '+':
		tok.Type, tok.Literal = PLUS, "+"
	case '-':
		tok.Type, tok.Literal = MINUS, "-"
	case '*':
		tok.Type, tok.Literal = ASTERISK, "*"
	case '/':
		tok.Type, tok.Literal = SLASH, "/"
	case '%':
		tok.Type, tok.Literal = PERCENT, "%"
	case ',':
		tok.Type, tok.Literal = COMMA, ","
	case '.':
		tok.Type, tok.Literal = DOT, "."
	case '(':
		tok.Type, tok.Literal = LPAREN, "("
	case ')':
		tok.Type, tok.Literal = RPAREN, ")"
	case '[':
		tok.Type, tok.Literal = LBRACKET, "["
	case ']':
		tok.Type, tok.Literal = RBRACKET, "]"
	case '=':
		if l.peekRune() == '=' {
			l.readRune()
			tok.Type, tok.Literal = EQ, "=="
		} else {
			tok.Type, tok.Literal = ILLEGAL, "="
		}
	case '!':
		if l.peekRune() == '=' {
			l.readRune()
			tok.Type, tok.Literal = NOT_EQ, "!="
		} else {
			tok.Type, tok.Literal = BANG, "!"
		}
	case '<':
		if l.peekRune() == '=' {
			l.readRune()
			tok.Type, tok.Literal = LTE, "<="
		} else {
			tok.Type, tok.Literal = LT, "<"
		}
	case '>':
		if l.peekRune() == '=' {
			l.readRune()
			tok.Type, tok.Literal = GTE, ">="
		} else {
			tok.Type, tok.Literal = GT, ">"
		}
	case '&':
		if l.peekRune() == '&' {
			l.readRune()
			tok.Type, tok.Literal = AND, "&&"
		} else {
			tok.Type, tok.Literal = ILLEGAL, "&"
		}
	case '|':
		if l.peekRune() == '|' {
			l.readRune()
			tok.Type, tok.Literal = OR, "||"
		} else {
			tok.Type, tok.Literal = ILLEGAL, "|"
		}
	case '"', '\'':
		literal, ok := l.readString(l.ch)
		if !ok {
			tok.Type, tok.Literal = ILLEGAL, literal
		} else {
			tok.Type, tok.Literal = STRING, literal
		}
	case 0:
		tok.Type, tok.Literal = EOF, ""
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			if kw, ok := keywords[tok.Literal]; ok {
				tok.Type = kw
			} else {
				tok.Type = IDENT
			}
			return tok
		}
		if unicode.IsDigit(l.ch) {
			tok.Type, tok.Literal = l.readNumber()
			return tok
		}
		tok.Type, tok.Literal = ILLEGAL, string(l.ch)
	}

	l.readRune()
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readRune()
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isLetter(l.ch) || unicode.IsDigit(l.ch) {
		l.readRune()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber() (TokenType, string) {
	start := l.position
	tokType := INT
	for unicode.IsDigit(l.ch) {
		l.readRune()
	}
	if l.ch == '.' && unicode.IsDigit(l.peekRune()) {
		tokType = FLOAT
		l.readRune()
		for unicode.IsDigit(l.ch) {
			l.readRune()
		}
	}
	return tokType, l.input[start:l.position]
}

// readString reads a quoted string with backslash escapes. Returns the
// unescaped content and false on an unterminated string.
func (l *Lexer) readString(quote rune) (string, bool) {
	var out []rune
	for {
		l.readRune()
		switch l.ch {
		case 0:
			return string(out), false
		case quote:
			return string(out), true
		case '\\':
			l.readRune()
			switch l.ch {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, l.ch)
			}
		default:
			out = append(out, l.ch)
		}
	}
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}
