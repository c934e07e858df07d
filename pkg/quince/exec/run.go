package exec

import (
	"context"
	"strings"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/scope"
)

// Run is the state of one request execution. It lives on a single goroutine;
// the only shared structures it touches are the Session and Application
// stores, through the scope context.
type Run struct {
	rt    *Runtime
	ctx   context.Context
	scope *scope.Context
	out   *Output

	requestID string
	file      string

	functions map[string]*ast.Function
	imports   map[string]*ast.SourceUnit
	slots     []slotBinding

	depth int // function/component call depth
	steps int // executed statement count against the step budget

	capture []*strings.Builder // open output captures, innermost last
}

// slotBinding is the caller content bound into a component call, together
// with the scope it must be evaluated in.
type slotBinding struct {
	nodes []ast.Node
	scope *scope.Context
}

// ExecBody runs a statement sequence in document order, stopping at the
// first Return or Redirect signal. A cooperative abort check runs between
// statements so an externally imposed budget can stop a runaway loop
// without corrupting shared scope state.
func (r *Run) ExecBody(nodes []ast.Node) (Result, error) {
	for _, node := range nodes {
		if err := r.checkAbort(); err != nil {
			return Continue, err
		}
		res, err := r.rt.registry.Execute(r, node)
		if err != nil {
			return Continue, r.located(err, node)
		}
		if res.Signal != SignalNone {
			return res, nil
		}
	}
	return Continue, nil
}

// checkAbort enforces cancellation and the step budget between statements.
func (r *Run) checkAbort() error {
	select {
	case <-r.ctx.Done():
		return errors.NewExecution(r.ctx.Err(), "execution aborted: %s", r.ctx.Err())
	default:
	}
	r.steps++
	if r.rt.maxSteps > 0 && r.steps > r.rt.maxSteps {
		return errors.NewExecution(nil, "step budget of %d statements exceeded", r.rt.maxSteps)
	}
	return nil
}

// located stamps an error with the failing node's position and the current
// file, keeping an already-located position intact.
func (r *Run) located(err error, node ast.Node) error {
	qe := errors.AsQuince(err)
	if qe.Line == 0 {
		pos := node.Pos()
		qe = qe.WithPosition(pos.Line, pos.Column)
	}
	if qe.File == "" && r.file != "" {
		qe = qe.WithFile(r.file)
	}
	return qe
}

// Emit appends an output fragment, to the innermost capture when one is
// open.
func (r *Run) Emit(fragment string) {
	if fragment == "" {
		return
	}
	if n := len(r.capture); n > 0 {
		r.capture[n-1].WriteString(fragment)
		return
	}
	r.out.Fragments = append(r.out.Fragments, fragment)
}

// PushCapture redirects output into a buffer until PopCapture.
func (r *Run) PushCapture() {
	r.capture = append(r.capture, &strings.Builder{})
}

// PopCapture closes the innermost capture and returns its content.
func (r *Run) PopCapture() string {
	n := len(r.capture)
	if n == 0 {
		return ""
	}
	out := r.capture[n-1].String()
	r.capture = r.capture[:n-1]
	return out
}

// Interpolate substitutes {...} expressions in free text against the current
// scope.
func (r *Run) Interpolate(text string) (string, error) {
	return expr.Interpolate(text, r.rt.exprs, r.scope)
}

// EvalAttr evaluates a dynamic attribute or q:set value. The policy is
// documented and uniform:
//
//   - a value that is exactly one {...} group evaluates as that expression,
//     preserving its type
//   - a value containing {...} among other text interpolates to a string
//   - otherwise a value that reads as a number, boolean or null is that
//     literal
//   - anything else is a literal string
func (r *Run) EvalAttr(text string) (expr.Object, error) {
	trimmed := strings.TrimSpace(text)
	if strings.ContainsRune(trimmed, '{') {
		if wholeExpression(trimmed) {
			return r.rt.exprs.Evaluate(trimmed, r.scope)
		}
		s, err := r.Interpolate(text)
		if err != nil {
			return nil, err
		}
		return &expr.String{Value: s}, nil
	}
	if lit, ok := scalarLiteral(trimmed); ok {
		return lit, nil
	}
	return &expr.String{Value: text}, nil
}

// wholeExpression reports whether text is a single balanced {...} group.
func wholeExpression(text string) bool {
	if len(text) < 2 || text[0] != '{' {
		return false
	}
	return strings.HasSuffix(text, "}") && expr.Normalize(text) != text
}

// scalarLiteral parses unbraced attribute text as a typed literal.
func scalarLiteral(text string) (expr.Object, bool) {
	switch text {
	case "true":
		return expr.TRUE, true
	case "false":
		return expr.FALSE, true
	case "null", "":
		return expr.NULL, true
	}
	p := expr.NewParser(text)
	parsed, err := p.Parse()
	if err != nil {
		return nil, false
	}
	switch lit := parsed.(type) {
	case *expr.IntegerLiteral:
		return &expr.Integer{Value: lit.Value}, true
	case *expr.FloatLiteral:
		return &expr.Float{Value: lit.Value}, true
	case *expr.PrefixExpr:
		// Negative number literals arrive as -N.
		if lit.Operator == "-" {
			if v, err := expr.Eval(parsed, expr.MapResolver{}); err == nil {
				switch v.(type) {
				case *expr.Integer, *expr.Float:
					return v, true
				}
			}
		}
	}
	return nil, false
}

// Condition evaluates expression text and coerces it with the evaluator's
// one truthiness rule.
func (r *Run) Condition(text string) (bool, error) {
	v, err := r.rt.exprs.Evaluate(text, r.scope)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}
