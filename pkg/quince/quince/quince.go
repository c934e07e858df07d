// Package quince provides a public API for embedding the Quince template
// runtime.
package quince

import (
	"context"
	"time"

	"github.com/quincelang/quince/pkg/quince/cache"
	"github.com/quincelang/quince/pkg/quince/exec"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/scope"
)

// Options configures an Engine. The zero value works for rendering local
// files with no collaborators.
type Options struct {
	// Root anchors relative component paths.
	Root string

	Services  exec.Services
	Logger    exec.Logger
	Authorize exec.AuthorizeFunc

	MaxDepth      int
	MaxSteps      int
	ExprCacheSize int
	CacheDisabled bool

	// SessionTTL is the idle lifetime of a session store. Zero means the
	// default of 24 hours.
	SessionTTL time.Duration

	// Watch enables filesystem invalidation of cached parses under Root.
	Watch     bool
	WatchExts []string
}

// Engine is one embedded runtime instance: the shared runtime plus the
// application store and the session registry. It is safe for concurrent use.
type Engine struct {
	rt       *exec.Runtime
	app      *scope.Store
	sessions *scope.Sessions
	watcher  *cache.Watcher
	cancel   context.CancelFunc
}

// New builds an Engine from options.
func New(opts Options) (*Engine, error) {
	rt := exec.NewRuntime(exec.Options{
		Services:      opts.Services,
		Logger:        opts.Logger,
		Authorize:     opts.Authorize,
		Root:          opts.Root,
		MaxDepth:      opts.MaxDepth,
		MaxSteps:      opts.MaxSteps,
		ExprCacheSize: opts.ExprCacheSize,
		CacheDisabled: opts.CacheDisabled,
	})

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = scope.DefaultSessionTTL
	}

	e := &Engine{
		rt:       rt,
		app:      scope.NewStore(),
		sessions: scope.NewSessions(ttl),
	}

	if opts.Watch && opts.Root != "" {
		exts := opts.WatchExts
		if len(exts) == 0 {
			exts = []string{".qml", ".xml"}
		}
		w, err := cache.NewWatcher(rt.ASTCache(), exts...)
		if err != nil {
			return nil, err
		}
		if err := w.Add(opts.Root); err != nil {
			w.Close()
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		go w.Start(ctx)
		e.watcher = w
		e.cancel = cancel
	}

	return e, nil
}

// Render executes a component file. Params are native Go values bound to the
// component's declared parameters; sessionID selects (or creates) the
// per-user session store, and "" means an anonymous throwaway session.
func (e *Engine) Render(ctx context.Context, path string, params map[string]any, sessionID string) (*exec.Output, error) {
	return e.rt.ExecuteFile(ctx, path, toObjects(params), e.app, e.session(sessionID))
}

// RenderSource parses and executes component source directly, keyed by name
// in the parse cache.
func (e *Engine) RenderSource(ctx context.Context, name, src string, params map[string]any, sessionID string) (*exec.Output, error) {
	unit, err := e.rt.ASTCache().LoadContent(name, []byte(src))
	if err != nil {
		return nil, err
	}
	return e.rt.ExecuteComponent(ctx, unit, toObjects(params), e.app, e.session(sessionID))
}

func (e *Engine) session(id string) *scope.Store {
	if id == "" {
		return scope.NewStore()
	}
	return e.sessions.Get(id)
}

// Application exposes the process-wide application store.
func (e *Engine) Application() *scope.Store { return e.app }

// Sessions exposes the session registry, for pruning and host session
// management.
func (e *Engine) Sessions() *scope.Sessions { return e.sessions }

// Runtime exposes the underlying runtime, for registering extra tags or
// inspecting cache stats.
func (e *Engine) Runtime() *exec.Runtime { return e.rt }

// Close stops the file watcher when one is running.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

func toObjects(params map[string]any) map[string]expr.Object {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]expr.Object, len(params))
	for k, v := range params {
		out[k] = expr.FromNative(v)
	}
	return out
}
