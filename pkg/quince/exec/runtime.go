package exec

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/cache"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/parser"
	"github.com/quincelang/quince/pkg/quince/scope"
)

const (
	// DefaultMaxDepth bounds function and component call nesting.
	DefaultMaxDepth = 64
	// DefaultMaxSteps bounds executed statements per request.
	DefaultMaxSteps = 1_000_000
	// DefaultExprCacheSize bounds the compiled expression cache.
	DefaultExprCacheSize = 1024
)

// AuthorizeFunc decides whether the current request may run a component that
// declares requireAuth, given its declared roles.
type AuthorizeFunc func(ctx context.Context, roles []string) error

// Options configures a Runtime. The zero value works: defaults fill in and
// every collaborator stays nil until a tag needs it.
type Options struct {
	Services  Services
	Logger    Logger
	Authorize AuthorizeFunc

	// Root anchors relative component paths for imports and ExecuteFile.
	Root string

	MaxDepth      int
	MaxSteps      int
	ExprCacheSize int
	CacheDisabled bool
}

// Runtime owns the shared, request-independent machinery: the tag parser,
// both caches, the executor registry and the collaborator services. One
// Runtime serves many concurrent requests.
type Runtime struct {
	parser    *parser.Parser
	asts      *cache.Cache
	exprs     *expr.Cache
	registry  *Registry
	services  Services
	logger    Logger
	authorize AuthorizeFunc

	root     string
	maxDepth int
	maxSteps int
}

// NewRuntime builds a Runtime from options.
func NewRuntime(opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxSteps < 0 {
		opts.MaxSteps = 0
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.ExprCacheSize <= 0 {
		opts.ExprCacheSize = DefaultExprCacheSize
	}

	p := parser.New()
	asts := cache.New(p)
	asts.SetDisabled(opts.CacheDisabled)

	return &Runtime{
		parser:    p,
		asts:      asts,
		exprs:     expr.NewCache(opts.ExprCacheSize),
		registry:  NewRegistry(),
		services:  opts.Services,
		logger:    opts.Logger,
		authorize: opts.Authorize,
		root:      opts.Root,
		maxDepth:  opts.MaxDepth,
		maxSteps:  opts.MaxSteps,
	}
}

// ASTCache exposes the parse cache, for invalidation wiring such as a file
// watcher.
func (rt *Runtime) ASTCache() *cache.Cache { return rt.asts }

// ExprCache exposes the compiled expression cache.
func (rt *Runtime) ExprCache() *expr.Cache { return rt.exprs }

// Registry exposes the executor registry so hosts can install extra tags.
func (rt *Runtime) Registry() *Registry { return rt.registry }

// Output is the rendered result of one request.
type Output struct {
	Fragments []string // rendered fragments in document order

	RedirectTo string // non-empty when execution ended in a redirect
	Flash      string
	FlashType  string
}

// HTML joins the rendered fragments.
func (o *Output) HTML() string { return strings.Join(o.Fragments, "") }

// Redirected reports whether execution ended in a redirect.
func (o *Output) Redirected() bool { return o.RedirectTo != "" }

// ExecuteFile loads a component through the parse cache and executes it.
// Relative paths resolve against the runtime root.
func (rt *Runtime) ExecuteFile(ctx context.Context, path string, params map[string]expr.Object, app, session *scope.Store) (*Output, error) {
	resolved := path
	if !filepath.IsAbs(resolved) && rt.root != "" {
		resolved = filepath.Join(rt.root, resolved)
	}
	unit, err := rt.asts.Load(resolved)
	if err != nil {
		return nil, errors.AsQuince(err).WithFile(path)
	}
	return rt.execute(ctx, unit, path, params, app, session)
}

// ExecuteComponent executes an already-parsed unit. Params bind to the
// unit's declared parameters; a missing required parameter is a ParamError
// naming it.
func (rt *Runtime) ExecuteComponent(ctx context.Context, unit *ast.SourceUnit, params map[string]expr.Object, app, session *scope.Store) (*Output, error) {
	return rt.execute(ctx, unit, "", params, app, session)
}

func (rt *Runtime) execute(ctx context.Context, unit *ast.SourceUnit, file string, params map[string]expr.Object, app, session *scope.Store) (*Output, error) {
	if unit.RequireAuth {
		if rt.authorize == nil {
			return nil, errors.NewExecution(nil, "%q requires authentication but no authorizer is configured", unit.Name)
		}
		if err := rt.authorize(ctx, unit.Roles); err != nil {
			return nil, errors.NewExecution(err, "access to %q denied", unit.Name)
		}
	}

	out := &Output{}
	run := &Run{
		rt:        rt,
		ctx:       ctx,
		scope:     scope.NewContext(app, session),
		out:       out,
		requestID: uuid.NewString(),
		file:      file,
		functions: make(map[string]*ast.Function),
		imports:   make(map[string]*ast.SourceUnit),
	}

	bound, err := bindParams(run, unit.Params, params, unitLabel(unit))
	if err != nil {
		return nil, err
	}
	for name, v := range bound {
		run.scope.SetComponent(name, v)
	}

	res, err := run.ExecBody(unit.Statements)
	if err != nil {
		return out, err
	}
	if res.Signal == SignalRedirect && out.RedirectTo == "" {
		out.RedirectTo = res.Target
	}
	return out, nil
}

func unitLabel(unit *ast.SourceUnit) string {
	if unit.Unit == ast.UnitApplication {
		return "application " + unit.Name
	}
	return "component " + unit.Name
}
