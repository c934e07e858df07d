package exec

import (
	"path/filepath"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
)

// execFunction registers a function declaration for later calls in the same
// request. Redeclaring a name overwrites it.
func execFunction(r *Run, node ast.Node) (Result, error) {
	f := node.(*ast.Function)
	r.functions[f.Name] = f
	return Continue, nil
}

func execReturn(r *Run, node ast.Node) (Result, error) {
	ret := node.(*ast.Return)
	value := expr.Object(expr.NULL)
	if ret.Value != "" {
		v, err := r.EvalAttr(ret.Value)
		if err != nil {
			return Continue, err
		}
		value = v
	}
	return Result{Signal: SignalReturn, Value: value}, nil
}

// execCall invokes a declared function: a fresh Local frame is seeded with
// the bound arguments, a Return signal yields the value to the caller, and
// recursion is depth-bounded so a runaway becomes a catchable error instead
// of a stack overflow.
func execCall(r *Run, node ast.Node) (Result, error) {
	c := node.(*ast.Call)

	fn, ok := r.functions[c.Function]
	if !ok {
		return Continue, errors.NewExecution(nil, "unknown function %q", c.Function)
	}

	if r.depth >= r.rt.maxDepth {
		return Continue, errors.NewExecution(nil,
			"call depth limit of %d exceeded in %q", r.rt.maxDepth, c.Function)
	}

	// Arguments evaluate in the caller's scope before the callee frame
	// opens.
	args := make(map[string]expr.Object, len(c.Args))
	for _, a := range c.Args {
		v, err := r.EvalAttr(a.Value)
		if err != nil {
			return Continue, err
		}
		args[a.Name] = v
	}

	bound, err := bindParams(r, fn.Params, args, "function "+fn.Name)
	if err != nil {
		return Continue, err
	}

	r.depth++
	r.scope.PushLocal()
	for name, v := range bound {
		r.scope.SetLocal(name, v)
	}
	res, err := r.ExecBody(fn.Children)
	r.scope.PopLocal()
	r.depth--
	if err != nil {
		return Continue, err
	}

	value := expr.Object(expr.NULL)
	if res.Signal == SignalReturn {
		value = res.Value
	} else if res.Signal == SignalRedirect {
		// A redirect inside a function propagates out of the call.
		return res, nil
	}

	if c.Result != "" {
		r.scope.Assign(c.Result, value)
	}
	return Continue, nil
}

// bindParams applies declared parameters to provided arguments: a missing
// required parameter is a ParamError naming it; a declared default fills in
// silently; types coerce per declaration.
func bindParams(r *Run, decls []ast.ParamDecl, args map[string]expr.Object, where string) (map[string]expr.Object, error) {
	bound := make(map[string]expr.Object, len(decls))
	for _, decl := range decls {
		v, ok := args[decl.Name]
		if !ok {
			if decl.Default != "" {
				dv, err := r.EvalAttr(decl.Default)
				if err != nil {
					return nil, err
				}
				bound[decl.Name] = dv
				continue
			}
			if decl.Required {
				return nil, errors.NewParam(decl.Name,
					"%s is missing required parameter %q", where, decl.Name)
			}
			bound[decl.Name] = expr.NULL
			continue
		}
		cv, err := coerceParam(decl, v)
		if err != nil {
			return nil, err
		}
		bound[decl.Name] = cv
	}
	return bound, nil
}

// coerceParam applies a declared parameter type.
func coerceParam(decl ast.ParamDecl, v expr.Object) (expr.Object, error) {
	switch decl.Type {
	case "", "any":
		return v, nil
	case "string":
		return &expr.String{Value: expr.Stringify(v)}, nil
	case "number":
		switch n := v.(type) {
		case *expr.Integer, *expr.Float:
			return v, nil
		case *expr.String:
			if lit, ok := scalarLiteral(n.Value); ok {
				switch lit.(type) {
				case *expr.Integer, *expr.Float:
					return lit, nil
				}
			}
		}
		return nil, errors.NewParam(decl.Name, "parameter %q must be a number, got %s", decl.Name, v.Type())
	case "boolean":
		if b, ok := v.(*expr.Boolean); ok {
			return b, nil
		}
		return expr.BoolOf(expr.Truthy(v)), nil
	case "array":
		if _, ok := v.(*expr.Array); ok {
			return v, nil
		}
		return nil, errors.NewParam(decl.Name, "parameter %q must be an array, got %s", decl.Name, v.Type())
	default:
		return nil, errors.NewParam(decl.Name, "parameter %q has unknown type %q", decl.Name, decl.Type)
	}
}

// execImport loads a component file through the AST cache and binds it to a
// local tag name for later component calls in this file.
func execImport(r *Run, node ast.Node) (Result, error) {
	imp := node.(*ast.Import)

	path := imp.Src
	if !filepath.IsAbs(path) && r.rt.root != "" {
		path = filepath.Join(r.rt.root, path)
	}
	unit, err := r.rt.asts.Load(path)
	if err != nil {
		return Continue, err
	}
	r.imports[imp.Name] = unit
	return Continue, nil
}

// execComponentCall runs an imported component: caller attributes bind to
// the callee's declared parameters, caller child content fills the callee's
// default slot, and the callee executes in a forked scope so its bindings
// stay its own.
func execComponentCall(r *Run, node ast.Node) (Result, error) {
	call := node.(*ast.ComponentCall)

	unit, ok := r.imports[call.Name]
	if !ok {
		return Continue, errors.NewExecution(nil, "component <%s> is not imported", call.Name)
	}

	if r.depth >= r.rt.maxDepth {
		return Continue, errors.NewExecution(nil,
			"call depth limit of %d exceeded at component <%s>", r.rt.maxDepth, call.Name)
	}

	args := make(map[string]expr.Object, len(call.Attrs))
	for _, a := range call.Attrs {
		v, err := r.EvalAttr(a.Value)
		if err != nil {
			return Continue, err
		}
		args[a.Name] = v
	}
	bound, err := bindParams(r, unit.Params, args, "component <"+call.Name+">")
	if err != nil {
		return Continue, err
	}

	// Slot content executes later, in the caller's scope.
	r.slots = append(r.slots, slotBinding{nodes: call.Children, scope: r.scope})

	callerScope := r.scope
	callerFunctions := r.functions
	callerImports := r.imports

	r.scope = callerScope.Fork()
	r.functions = make(map[string]*ast.Function)
	r.imports = make(map[string]*ast.SourceUnit)
	for name, v := range bound {
		r.scope.SetComponent(name, v)
	}
	r.depth++

	res, err := r.ExecBody(unit.Statements)

	r.depth--
	r.scope = callerScope
	r.functions = callerFunctions
	r.imports = callerImports
	r.slots = r.slots[:len(r.slots)-1]

	if err != nil {
		return Continue, err
	}
	// A callee Return ends only the callee; a Redirect propagates.
	if res.Signal == SignalRedirect {
		return res, nil
	}
	return Continue, nil
}

// execSlot renders the caller content bound to the current component call,
// evaluated in the caller's scope.
func execSlot(r *Run, node ast.Node) (Result, error) {
	if len(r.slots) == 0 {
		// A slot outside any component call renders nothing.
		return Continue, nil
	}
	binding := r.slots[len(r.slots)-1]

	// The binding comes off the stack while its content runs, so a stray
	// <q:slot/> inside the caller content resolves to the next-outer binding
	// instead of re-rendering this one forever.
	r.slots = r.slots[:len(r.slots)-1]
	calleeScope := r.scope
	r.scope = binding.scope
	res, err := r.ExecBody(binding.nodes)
	r.scope = calleeScope
	r.slots = append(r.slots, binding)

	if err != nil {
		return Continue, err
	}
	if res.Signal == SignalRedirect {
		return res, nil
	}
	return Continue, nil
}
