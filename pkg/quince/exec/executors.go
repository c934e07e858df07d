package exec

import (
	"html"
	"strings"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
)

func execText(r *Run, node ast.Node) (Result, error) {
	t := node.(*ast.Text)
	s, err := r.Interpolate(t.Text)
	if err != nil {
		return Continue, err
	}
	r.Emit(s)
	return Continue, nil
}

func execHtml(r *Run, node ast.Node) (Result, error) {
	h := node.(*ast.Html)

	var tag strings.Builder
	tag.WriteString("<" + h.Tag)
	for _, a := range h.Attrs {
		value := a.Value
		if a.Dynamic {
			s, err := r.Interpolate(a.Value)
			if err != nil {
				return Continue, err
			}
			value = s
		}
		tag.WriteString(" " + a.Name + `="` + html.EscapeString(value) + `"`)
	}
	if h.SelfClosing {
		tag.WriteString("/>")
		r.Emit(tag.String())
		return Continue, nil
	}
	tag.WriteString(">")
	r.Emit(tag.String())

	res, err := r.ExecBody(h.Children)
	if err != nil || res.Signal != SignalNone {
		return res, err
	}

	r.Emit("</" + h.Tag + ">")
	return Continue, nil
}

// execSet assigns an evaluated value. Session- and Application-scoped
// targets evaluate and assign atomically under the store lock so concurrent
// counters never lose updates.
func execSet(r *Run, node ast.Node) (Result, error) {
	s := node.(*ast.Set)
	err := r.scope.AssignAtomic(s.Name, func(resolver expr.Resolver) (expr.Object, error) {
		return r.evalAttrWith(s.Value, resolver)
	})
	return Continue, err
}

// evalAttrWith is EvalAttr against an explicit resolver, for evaluation
// under a store lock.
func (r *Run) evalAttrWith(text string, resolver expr.Resolver) (expr.Object, error) {
	trimmed := strings.TrimSpace(text)
	if strings.ContainsRune(trimmed, '{') {
		if wholeExpression(trimmed) {
			return r.rt.exprs.Evaluate(trimmed, resolver)
		}
		s, err := expr.Interpolate(text, r.rt.exprs, resolver)
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

func execIf(r *Run, node ast.Node) (Result, error) {
	i := node.(*ast.If)

	for _, branch := range i.Branches {
		ok, err := r.Condition(branch.Condition)
		if err != nil {
			return Continue, err
		}
		if ok {
			return r.ExecBody(branch.Children)
		}
	}
	if len(i.Else) > 0 {
		return r.ExecBody(i.Else)
	}
	return Continue, nil
}

func execLoop(r *Run, node ast.Node) (Result, error) {
	l := node.(*ast.Loop)

	switch l.Type {
	case ast.LoopRange:
		return execRangeLoop(r, l)
	case ast.LoopArray:
		return execArrayLoop(r, l)
	case ast.LoopQuery:
		return execQueryLoop(r, l)
	default:
		return Continue, errors.NewExecution(nil, "unknown loop type %q", l.Type)
	}
}

// iteration runs one loop body pass in a fresh Local frame binding the loop
// variable and its 1-based companion counter. Names first bound during the
// pass die with the frame; an assignment to a name bound outside it updates
// that binding in place, so accumulators declared before the loop survive it.
func (r *Run) iteration(l *ast.Loop, count int, bind func()) (Result, error) {
	if err := r.checkAbort(); err != nil {
		return Continue, err
	}
	r.scope.PushLocal()
	defer r.scope.PopLocal()

	bind()
	r.scope.SetLocal(l.Var+"_count", &expr.Integer{Value: int64(count)})
	return r.ExecBody(l.Children)
}

func execRangeLoop(r *Run, l *ast.Loop) (Result, error) {
	from, err := r.loopInt(l.From, "from")
	if err != nil {
		return Continue, err
	}
	to, err := r.loopInt(l.To, "to")
	if err != nil {
		return Continue, err
	}
	step := int64(1)
	if l.Step != "" {
		step, err = r.loopInt(l.Step, "step")
		if err != nil {
			return Continue, err
		}
	}
	if step == 0 {
		return Continue, errors.NewExecution(nil, "<q:loop> step cannot be 0")
	}

	count := 0
	for i := from; (step > 0 && i <= to) || (step < 0 && i >= to); i += step {
		count++
		res, err := r.iteration(l, count, func() {
			r.scope.SetLocal(l.Var, &expr.Integer{Value: i})
		})
		if err != nil || res.Signal != SignalNone {
			return res, err
		}
	}
	return Continue, nil
}

func (r *Run) loopInt(text, attr string) (int64, error) {
	v, err := r.EvalAttr(text)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case *expr.Integer:
		return n.Value, nil
	case *expr.Float:
		return int64(n.Value), nil
	default:
		return 0, errors.NewExecution(nil, "<q:loop> attribute %q must be a number, got %s", attr, v.Type())
	}
}

// execArrayLoop iterates an ordered sequence. An empty or null sequence runs
// zero iterations and is not an error.
func execArrayLoop(r *Run, l *ast.Loop) (Result, error) {
	items, err := r.EvalAttr(l.Items)
	if err != nil {
		return Continue, err
	}

	var elements []expr.Object
	switch v := items.(type) {
	case *expr.Array:
		elements = v.Elements
	case *expr.Null:
		// zero iterations
	case *expr.RowSet:
		for _, row := range v.Rows {
			elements = append(elements, row)
		}
	default:
		return Continue, errors.NewExecution(nil, "<q:loop> items must be an array, got %s", items.Type())
	}

	for i, elem := range elements {
		res, err := r.iteration(l, i+1, func() {
			r.scope.SetLocal(l.Var, elem)
			if l.Index != "" {
				r.scope.SetLocal(l.Index, &expr.Integer{Value: int64(i)})
			}
		})
		if err != nil || res.Signal != SignalNone {
			return res, err
		}
	}
	return Continue, nil
}

// execQueryLoop iterates the rows of a previously bound row set.
func execQueryLoop(r *Run, l *ast.Loop) (Result, error) {
	v, ok := r.scope.Resolve(l.Query)
	if !ok {
		return Continue, errors.NewExecution(nil, "<q:loop> query %q is not bound", l.Query)
	}
	rows, ok := v.(*expr.RowSet)
	if !ok {
		return Continue, errors.NewExecution(nil, "<q:loop> query %q is %s, not a row set", l.Query, v.Type())
	}

	for i, row := range rows.Rows {
		res, err := r.iteration(l, i+1, func() {
			r.scope.SetLocal(l.Var, row)
		})
		if err != nil || res.Signal != SignalNone {
			return res, err
		}
	}
	return Continue, nil
}
