package expr

import (
	"strconv"

	"github.com/quincelang/quince/pkg/quince/errors"
)

// Operator precedence levels, lowest first.
const (
	_ int = iota
	LOWEST
	LOGIC_OR    // ||
	LOGIC_AND   // &&
	EQUALS      // ==, !=
	LESSGREATER // <, >, <=, >=
	SUM         // +, -
	PRODUCT     // *, /, %
	PREFIX      // -x, !x
	INDEX       // items[i], user.name
	CALL        // len(x)
)

var precedences = map[TokenType]int{
	OR:       LOGIC_OR,
	AND:      LOGIC_AND,
	EQ:       EQUALS,
	NOT_EQ:   EQUALS,
	LT:       LESSGREATER,
	GT:       LESSGREATER,
	LTE:      LESSGREATER,
	GTE:      LESSGREATER,
	PLUS:     SUM,
	MINUS:    SUM,
	ASTERISK: PRODUCT,
	SLASH:    PRODUCT,
	PERCENT:  PRODUCT,
	LBRACKET: INDEX,
	DOT:      INDEX,
	LPAREN:   CALL,
}

type (
	prefixParseFn func() Expr
	infixParseFn  func(Expr) Expr
)

// Parser builds an expression tree from databinding text using Pratt
// parsing. The language is intentionally restricted: no assignment, no
// statements, calls only to the fixed builtin table.
type Parser struct {
	l      *Lexer
	source string

	curToken  Token
	peekToken Token

	errs []*errors.QuinceError

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
}

// NewParser creates a parser for one expression text.
func NewParser(source string) *Parser {
	p := &Parser{l: NewLexer(source), source: source}

	p.prefixParseFns = make(map[TokenType]prefixParseFn)
	p.registerPrefix(IDENT, p.parseIdentifier)
	p.registerPrefix(INT, p.parseIntegerLiteral)
	p.registerPrefix(FLOAT, p.parseFloatLiteral)
	p.registerPrefix(STRING, p.parseStringLiteral)
	p.registerPrefix(TRUE_TOK, p.parseBooleanLiteral)
	p.registerPrefix(FALSE_TOK, p.parseBooleanLiteral)
	p.registerPrefix(NULL_TOK, p.parseNullLiteral)
	p.registerPrefix(BANG, p.parsePrefixExpr)
	p.registerPrefix(MINUS, p.parsePrefixExpr)
	p.registerPrefix(LPAREN, p.parseGroupedExpr)
	p.registerPrefix(LBRACKET, p.parseArrayLiteral)

	p.infixParseFns = make(map[TokenType]infixParseFn)
	for _, tt := range []TokenType{PLUS, MINUS, ASTERISK, SLASH, PERCENT, EQ, NOT_EQ, LT, GT, LTE, GTE, AND, OR} {
		p.registerInfix(tt, p.parseInfixExpr)
	}
	p.registerInfix(LBRACKET, p.parseIndexExpr)
	p.registerInfix(DOT, p.parseMemberExpr)
	p.registerInfix(LPAREN, p.parseCallExpr)

	// Read two tokens so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(tokenType TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Parse parses the whole input as a single expression. Trailing tokens are a
// syntax error.
func (p *Parser) Parse() (Expr, error) {
	e := p.parseExpression(LOWEST)
	if len(p.errs) > 0 {
		return nil, p.errs[0]
	}
	if p.peekToken.Type != EOF {
		return nil, errors.NewEval(p.source, "unexpected token '%s'", p.peekToken.Literal)
	}
	return e, nil
}

func (p *Parser) addError(format string, args ...any) {
	err := errors.NewEval(p.source, format, args...)
	err.Line = p.curToken.Line
	err.Column = p.curToken.Column
	p.errs = append(p.errs, err)
}

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekToken.Type == t {
		p.nextToken()
		return true
	}
	p.addError("unexpected token '%s'", p.peekToken.Literal)
	return false
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseExpression(precedence int) Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		if p.curToken.Type == EOF {
			p.addError("unexpected end of expression")
		} else {
			p.addError("unexpected token '%s'", p.curToken.Literal)
		}
		return nil
	}
	left := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}

	return left
}

func (p *Parser) parseIdentifier() Expr {
	return &Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() Expr {
	value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.addError("invalid integer literal '%s'", p.curToken.Literal)
		return nil
	}
	return &IntegerLiteral{Token: p.curToken, Value: value}
}

func (p *Parser) parseFloatLiteral() Expr {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addError("invalid number literal '%s'", p.curToken.Literal)
		return nil
	}
	return &FloatLiteral{Token: p.curToken, Value: value}
}

func (p *Parser) parseStringLiteral() Expr {
	return &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBooleanLiteral() Expr {
	return &BooleanLiteral{Token: p.curToken, Value: p.curToken.Type == TRUE_TOK}
}

func (p *Parser) parseNullLiteral() Expr {
	return &NullLiteral{Token: p.curToken}
}

func (p *Parser) parsePrefixExpr() Expr {
	e := &PrefixExpr{Token: p.curToken, Operator: p.curToken.Literal}
	if e.Operator == "not" {
		e.Operator = "!"
	}
	p.nextToken()
	e.Right = p.parseExpression(PREFIX)
	return e
}

func (p *Parser) parseInfixExpr(left Expr) Expr {
	e := &InfixExpr{Token: p.curToken, Left: left, Operator: p.curToken.Literal}
	switch e.Operator {
	case "and":
		e.Operator = "&&"
	case "or":
		e.Operator = "||"
	}
	precedence := p.curPrecedence()
	p.nextToken()
	e.Right = p.parseExpression(precedence)
	return e
}

func (p *Parser) parseGroupedExpr() Expr {
	p.nextToken()
	e := p.parseExpression(LOWEST)
	if !p.expectPeek(RPAREN) {
		return nil
	}
	return e
}

func (p *Parser) parseArrayLiteral() Expr {
	arr := &ArrayLiteral{Token: p.curToken}
	arr.Elements = p.parseExpressionList(RBRACKET)
	return arr
}

func (p *Parser) parseExpressionList(end TokenType) []Expr {
	var list []Expr

	if p.peekToken.Type == end {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, p.parseExpression(LOWEST))

	for p.peekToken.Type == COMMA {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseExpression(LOWEST))
	}

	if !p.expectPeek(end) {
		return nil
	}

	return list
}

func (p *Parser) parseIndexExpr(left Expr) Expr {
	e := &IndexExpr{Token: p.curToken, Left: left}
	p.nextToken()
	e.Index = p.parseExpression(LOWEST)
	if !p.expectPeek(RBRACKET) {
		return nil
	}
	return e
}

func (p *Parser) parseMemberExpr(left Expr) Expr {
	e := &MemberExpr{Token: p.curToken, Left: left}
	if !p.expectPeek(IDENT) {
		return nil
	}
	e.Property = p.curToken.Literal
	return e
}

func (p *Parser) parseCallExpr(left Expr) Expr {
	ident, ok := left.(*Identifier)
	if !ok {
		p.addError("only builtin functions can be called, got %s", left.String())
		return nil
	}
	e := &CallExpr{Token: p.curToken, Function: ident.Value}
	e.Arguments = p.parseExpressionList(RPAREN)
	return e
}

// ParseExpr is a convenience wrapper: parse one expression text or fail.
func ParseExpr(source string) (Expr, error) {
	return NewParser(source).Parse()
}
