package expr

import (
	"strings"

	"github.com/quincelang/quince/pkg/quince/errors"
)

// Resolver supplies variable values to expression evaluation. The execution
// context implements it; tests use small map-backed resolvers. Names may
// carry an explicit scope prefix (session.x, application.x, request.x) which
// the resolver handles itself.
type Resolver interface {
	Resolve(name string) (Object, bool)
}

// MapResolver is a Resolver over a plain map, used by tests and the REPL.
type MapResolver map[string]Object

// Resolve implements Resolver.
func (m MapResolver) Resolve(name string) (Object, bool) {
	v, ok := m[name]
	return v, ok
}

// scopePrefixes are the identifiers that address a scope directly instead of
// going through innermost-first resolution.
var scopePrefixes = map[string]bool{
	"session":     true,
	"application": true,
	"request":     true,
}

// Eval evaluates a parsed expression against a resolver. Undefined names
// evaluate to NULL; syntax problems were already caught at parse time, so
// errors here are type and operator misuse.
func Eval(node Expr, r Resolver) (Object, error) {
	switch n := node.(type) {
	case *IntegerLiteral:
		return &Integer{Value: n.Value}, nil
	case *FloatLiteral:
		return &Float{Value: n.Value}, nil
	case *StringLiteral:
		return &String{Value: n.Value}, nil
	case *BooleanLiteral:
		return BoolOf(n.Value), nil
	case *NullLiteral:
		return NULL, nil
	case *Identifier:
		if v, ok := r.Resolve(n.Value); ok {
			return v, nil
		}
		return NULL, nil
	case *ArrayLiteral:
		elements := make([]Object, 0, len(n.Elements))
		for _, e := range n.Elements {
			v, err := Eval(e, r)
			if err != nil {
				return nil, err
			}
			elements = append(elements, v)
		}
		return &Array{Elements: elements}, nil
	case *PrefixExpr:
		return evalPrefix(n, r)
	case *InfixExpr:
		return evalInfix(n, r)
	case *IndexExpr:
		return evalIndex(n, r)
	case *MemberExpr:
		return evalMember(n, r)
	case *CallExpr:
		return evalCall(n, r)
	default:
		return nil, errors.NewEval(node.String(), "cannot evaluate expression")
	}
}

func evalPrefix(n *PrefixExpr, r Resolver) (Object, error) {
	right, err := Eval(n.Right, r)
	if err != nil {
		return nil, err
	}
	switch n.Operator {
	case "!":
		return BoolOf(!Truthy(right)), nil
	case "-":
		switch v := right.(type) {
		case *Integer:
			return &Integer{Value: -v.Value}, nil
		case *Float:
			return &Float{Value: -v.Value}, nil
		case *Null:
			return &Integer{Value: 0}, nil
		default:
			return nil, errors.NewEval(n.String(), "unknown operator: -%s", right.Type())
		}
	default:
		return nil, errors.NewEval(n.String(), "unknown operator: %s", n.Operator)
	}
}

func evalInfix(n *InfixExpr, r Resolver) (Object, error) {
	// Logical operators short-circuit.
	if n.Operator == "&&" || n.Operator == "||" {
		left, err := Eval(n.Left, r)
		if err != nil {
			return nil, err
		}
		if n.Operator == "&&" && !Truthy(left) {
			return FALSE, nil
		}
		if n.Operator == "||" && Truthy(left) {
			return TRUE, nil
		}
		right, err := Eval(n.Right, r)
		if err != nil {
			return nil, err
		}
		return BoolOf(Truthy(right)), nil
	}

	left, err := Eval(n.Left, r)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, r)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "==":
		return BoolOf(Equals(left, right)), nil
	case "!=":
		return BoolOf(!Equals(left, right)), nil
	}

	// String + is concatenation; any string operand coerces the other side.
	if n.Operator == "+" {
		if ls, ok := left.(*String); ok {
			return &String{Value: ls.Value + Stringify(right)}, nil
		}
		if rs, ok := right.(*String); ok {
			return &String{Value: Stringify(left) + rs.Value}, nil
		}
	}

	ln, lok := asFloat(left)
	rn, rok := asFloat(right)
	if !lok || !rok {
		return nil, errors.NewEval(n.String(), "type mismatch: %s %s %s", left.Type(), n.Operator, right.Type())
	}

	switch n.Operator {
	case "<":
		return BoolOf(ln < rn), nil
	case ">":
		return BoolOf(ln > rn), nil
	case "<=":
		return BoolOf(ln <= rn), nil
	case ">=":
		return BoolOf(ln >= rn), nil
	}

	// Arithmetic stays integral when both operands are integral. Null
	// counts as integer zero per the undefined-coercion policy.
	li, lInt := intOperand(left)
	ri, rInt := intOperand(right)
	if lInt && rInt && n.Operator != "/" {
		switch n.Operator {
		case "+":
			return &Integer{Value: li + ri}, nil
		case "-":
			return &Integer{Value: li - ri}, nil
		case "*":
			return &Integer{Value: li * ri}, nil
		case "%":
			if ri == 0 {
				return nil, errors.NewEval(n.String(), "division by zero")
			}
			return &Integer{Value: li % ri}, nil
		}
	}

	switch n.Operator {
	case "+":
		return &Float{Value: ln + rn}, nil
	case "-":
		return &Float{Value: ln - rn}, nil
	case "*":
		return &Float{Value: ln * rn}, nil
	case "/":
		if rn == 0 {
			return nil, errors.NewEval(n.String(), "division by zero")
		}
		if lInt && rInt && li%ri == 0 {
			return &Integer{Value: li / ri}, nil
		}
		return &Float{Value: ln / rn}, nil
	case "%":
		return nil, errors.NewEval(n.String(), "operator %% requires integers")
	default:
		return nil, errors.NewEval(n.String(), "unknown operator: %s", n.Operator)
	}
}

func intOperand(obj Object) (int64, bool) {
	switch v := obj.(type) {
	case *Integer:
		return v.Value, true
	case *Null:
		return 0, true
	default:
		return 0, false
	}
}

func evalIndex(n *IndexExpr, r Resolver) (Object, error) {
	left, err := Eval(n.Left, r)
	if err != nil {
		return nil, err
	}
	index, err := Eval(n.Index, r)
	if err != nil {
		return nil, err
	}

	switch coll := left.(type) {
	case *Array:
		i, ok := index.(*Integer)
		if !ok {
			return nil, errors.NewEval(n.String(), "array index must be an integer, got %s", index.Type())
		}
		if i.Value < 0 || i.Value >= int64(len(coll.Elements)) {
			return NULL, nil
		}
		return coll.Elements[i.Value], nil
	case *Dict:
		key, ok := index.(*String)
		if !ok {
			return nil, errors.NewEval(n.String(), "dictionary key must be a string, got %s", index.Type())
		}
		if v, ok := coll.Pairs[key.Value]; ok {
			return v, nil
		}
		return NULL, nil
	case *RowSet:
		i, ok := index.(*Integer)
		if !ok {
			return nil, errors.NewEval(n.String(), "row index must be an integer, got %s", index.Type())
		}
		if i.Value < 0 || i.Value >= int64(len(coll.Rows)) {
			return NULL, nil
		}
		return coll.Rows[i.Value], nil
	case *Null:
		return NULL, nil
	default:
		return nil, errors.NewEval(n.String(), "cannot index %s", left.Type())
	}
}

func evalMember(n *MemberExpr, r Resolver) (Object, error) {
	// session.x / application.x / request.x address a scope directly; hand
	// the qualified name to the resolver untouched.
	if ident, ok := n.Left.(*Identifier); ok && scopePrefixes[ident.Value] {
		if v, ok := r.Resolve(ident.Value + "." + n.Property); ok {
			return v, nil
		}
		return NULL, nil
	}

	left, err := Eval(n.Left, r)
	if err != nil {
		return nil, err
	}

	switch v := left.(type) {
	case *Dict:
		if val, ok := v.Pairs[n.Property]; ok {
			return val, nil
		}
		return NULL, nil
	case *RowSet:
		switch n.Property {
		case "recordCount":
			return &Integer{Value: int64(len(v.Rows))}, nil
		case "columns":
			cols := make([]Object, len(v.Columns))
			for i, c := range v.Columns {
				cols[i] = &String{Value: c}
			}
			return &Array{Elements: cols}, nil
		}
		return NULL, nil
	case *Array:
		if n.Property == "length" {
			return &Integer{Value: int64(len(v.Elements))}, nil
		}
		return NULL, nil
	case *String:
		if n.Property == "length" {
			return &Integer{Value: int64(len([]rune(v.Value)))}, nil
		}
		return NULL, nil
	case *Null:
		return NULL, nil
	default:
		return nil, errors.NewEval(n.String(), "cannot access property %q on %s", n.Property, left.Type())
	}
}

func evalCall(n *CallExpr, r Resolver) (Object, error) {
	builtin, ok := builtins[n.Function]
	if !ok {
		return nil, errors.NewEval(n.String(), "unknown function %q", n.Function)
	}
	args := make([]Object, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		v, err := Eval(a, r)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return builtin.Fn(args...)
}

// Stringify renders a value for text interpolation. Null becomes the empty
// string.
func Stringify(obj Object) string {
	if obj == nil {
		return ""
	}
	if _, ok := obj.(*Null); ok {
		return ""
	}
	return obj.Inspect()
}

// Interpolate substitutes every {...} expression in text with its evaluated
// string form. Text without braces is returned unchanged. An unterminated
// brace is literal text, not an error; a malformed expression inside braces
// is.
func Interpolate(text string, cache *Cache, r Resolver) (string, error) {
	if !strings.ContainsRune(text, '{') {
		return text, nil
	}

	var out strings.Builder
	rest := text
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		close := MatchingBrace(rest, open)
		if close < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:open])
		inner := rest[open+1 : close]
		v, err := cache.Evaluate(inner, r)
		if err != nil {
			return "", err
		}
		out.WriteString(Stringify(v))
		rest = rest[close+1:]
	}
}

// MatchingBrace finds the index of the brace closing the one at open,
// honoring nesting and quoted strings.
func MatchingBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
