package expr

import (
	"bytes"
	"strings"
)

// Expr is the interface for parsed expression nodes.
type Expr interface {
	String() string
	exprNode() // marker method
}

// Identifier represents a bare name resolved against the scope chain.
type Identifier struct {
	Token Token
	Value string
}

func (i *Identifier) exprNode()      {}
func (i *Identifier) String() string { return i.Value }

// IntegerLiteral represents integer literals
type IntegerLiteral struct {
	Token Token
	Value int64
}

func (il *IntegerLiteral) exprNode()      {}
func (il *IntegerLiteral) String() string { return il.Token.Literal }

// FloatLiteral represents floating-point literals
type FloatLiteral struct {
	Token Token
	Value float64
}

func (fl *FloatLiteral) exprNode()      {}
func (fl *FloatLiteral) String() string { return fl.Token.Literal }

// StringLiteral represents quoted string literals
type StringLiteral struct {
	Token Token
	Value string
}

func (sl *StringLiteral) exprNode()      {}
func (sl *StringLiteral) String() string { return `"` + sl.Value + `"` }

// BooleanLiteral represents true/false
type BooleanLiteral struct {
	Token Token
	Value bool
}

func (bl *BooleanLiteral) exprNode()      {}
func (bl *BooleanLiteral) String() string { return bl.Token.Literal }

// NullLiteral represents the null keyword
type NullLiteral struct {
	Token Token
}

func (nl *NullLiteral) exprNode()      {}
func (nl *NullLiteral) String() string { return "null" }

// ArrayLiteral represents array literals like [1, 2, 3]
type ArrayLiteral struct {
	Token    Token
	Elements []Expr
}

func (al *ArrayLiteral) exprNode() {}
func (al *ArrayLiteral) String() string {
	elements := make([]string, 0, len(al.Elements))
	for _, e := range al.Elements {
		elements = append(elements, e.String())
	}
	return "[" + strings.Join(elements, ", ") + "]"
}

// PrefixExpr represents prefix expressions like !x or -y
type PrefixExpr struct {
	Token    Token
	Operator string
	Right    Expr
}

func (pe *PrefixExpr) exprNode()      {}
func (pe *PrefixExpr) String() string { return "(" + pe.Operator + pe.Right.String() + ")" }

// InfixExpr represents binary expressions like a + b
type InfixExpr struct {
	Token    Token
	Left     Expr
	Operator string
	Right    Expr
}

func (ie *InfixExpr) exprNode() {}
func (ie *InfixExpr) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// IndexExpr represents index expressions like items[0]
type IndexExpr struct {
	Token Token
	Left  Expr
	Index Expr
}

func (ie *IndexExpr) exprNode()      {}
func (ie *IndexExpr) String() string { return "(" + ie.Left.String() + "[" + ie.Index.String() + "])" }

// MemberExpr represents dotted access like user.name or session.cart
type MemberExpr struct {
	Token    Token
	Left     Expr
	Property string
}

func (me *MemberExpr) exprNode()      {}
func (me *MemberExpr) String() string { return me.Left.String() + "." + me.Property }

// CallExpr represents a call to a builtin function like len(items)
type CallExpr struct {
	Token     Token
	Function  string
	Arguments []Expr
}

func (ce *CallExpr) exprNode() {}
func (ce *CallExpr) String() string {
	var out bytes.Buffer
	args := make([]string, 0, len(ce.Arguments))
	for _, a := range ce.Arguments {
		args = append(args, a.String())
	}
	out.WriteString(ce.Function)
	out.WriteString("(")
	out.WriteString(strings.Join(args, ", "))
	out.WriteString(")")
	return out.String()
}
