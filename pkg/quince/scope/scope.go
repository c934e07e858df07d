// Package scope implements the variable-resolution model of the Quince
// runtime: a per-request stack of frames over externally owned Session and
// Application stores.
//
// Resolution of an unqualified name searches Local frames innermost-first,
// then the Component frame, then Request, and stops there. Session and
// Application values are reachable only through an explicit prefix
// (session.x, application.x), which prevents accidental leakage of shared
// state into ordinary lookups. Unqualified writes overwrite the binding the
// resolution chain finds; a name with no binding is created in the innermost
// Local frame, so names first bound inside a loop or call still die with it.
package scope

import (
	"strings"
	"sync"

	"github.com/quincelang/quince/pkg/quince/expr"
)

// Store is a lock-protected variable map for the Application and Session
// scopes. Application has one Store per process shared by every concurrent
// request; Session has one per logical user.
type Store struct {
	mu     sync.Mutex
	values map[string]expr.Object
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]expr.Object)}
}

// Get reads one value.
func (s *Store) Get(name string) (expr.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes one value.
func (s *Store) Set(name string, v expr.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// Update performs an atomic read-modify-write: compute runs under the store
// lock with a direct view of the store's values, and its result is written
// before the lock is released. Counters like
// application.counter = application.counter + 1 must go through here or
// concurrent requests lose updates.
func (s *Store) Update(name string, compute func(view map[string]expr.Object) (expr.Object, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := compute(s.values)
	if err != nil {
		return err
	}
	s.values[name] = v
	return nil
}

// Len returns the number of bindings in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Names of the explicitly addressable scopes.
const (
	ScopeApplication = "application"
	ScopeSession     = "session"
	ScopeRequest     = "request"
)

// Context is the per-request scope stack. It is used by exactly one
// goroutine, so its own frames need no locking; only the shared stores do.
type Context struct {
	app       *Store
	session   *Store
	request   map[string]expr.Object
	component map[string]expr.Object
	locals    []map[string]expr.Object // innermost frame last
}

// NewContext creates a request context over the given Session and
// Application stores. Either store may be nil when the host has no such
// scope (the prefix then reads as undefined and writes are dropped).
func NewContext(app, session *Store) *Context {
	return &Context{
		app:       app,
		session:   session,
		request:   make(map[string]expr.Object),
		component: make(map[string]expr.Object),
	}
}

// PushLocal opens a fresh Local frame (loop iteration, function call).
func (c *Context) PushLocal() {
	c.locals = append(c.locals, make(map[string]expr.Object))
}

// PopLocal discards the innermost Local frame and everything bound in it.
func (c *Context) PopLocal() {
	if len(c.locals) > 0 {
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// LocalDepth returns the number of open Local frames.
func (c *Context) LocalDepth() int {
	return len(c.locals)
}

// splitScoped splits "session.cart" into ("session", "cart"). Names without
// a recognized prefix return ("", name).
func splitScoped(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		switch prefix := name[:i]; prefix {
		case ScopeApplication, ScopeSession, ScopeRequest:
			return prefix, name[i+1:]
		}
	}
	return "", name
}

// Resolve implements expr.Resolver. Prefixed names short-circuit to their
// scope; unqualified names search Local frames outward through Component to
// Request and stop.
func (c *Context) Resolve(name string) (expr.Object, bool) {
	prefix, rest := splitScoped(name)
	switch prefix {
	case ScopeApplication:
		if c.app == nil {
			return nil, false
		}
		return c.app.Get(rest)
	case ScopeSession:
		if c.session == nil {
			return nil, false
		}
		return c.session.Get(rest)
	case ScopeRequest:
		v, ok := c.request[rest]
		return v, ok
	}

	for i := len(c.locals) - 1; i >= 0; i-- {
		if v, ok := c.locals[i][name]; ok {
			return v, true
		}
	}
	if v, ok := c.component[name]; ok {
		return v, true
	}
	v, ok := c.request[name]
	return v, ok
}

// Assign writes a value. A prefixed name targets its scope directly. An
// unqualified name overwrites an existing binding wherever the resolution
// chain finds it (Local frames innermost-first, then Component, then
// Request); a name bound nowhere is created in the innermost Local frame
// (Component when no Local frame is open).
func (c *Context) Assign(name string, v expr.Object) {
	prefix, rest := splitScoped(name)
	switch prefix {
	case ScopeApplication:
		if c.app != nil {
			c.app.Set(rest, v)
		}
		return
	case ScopeSession:
		if c.session != nil {
			c.session.Set(rest, v)
		}
		return
	case ScopeRequest:
		c.request[rest] = v
		return
	}

	for i := len(c.locals) - 1; i >= 0; i-- {
		if _, ok := c.locals[i][name]; ok {
			c.locals[i][name] = v
			return
		}
	}
	if _, ok := c.component[name]; ok {
		c.component[name] = v
		return
	}
	if _, ok := c.request[name]; ok {
		c.request[name] = v
		return
	}
	c.SetLocal(name, v)
}

// SetLocal binds a name directly in the innermost Local frame (Component when
// none is open), shadowing any outer binding of the same name. Loop variables
// and function parameters bind through here so they never overwrite a caller
// binding.
func (c *Context) SetLocal(name string, v expr.Object) {
	if len(c.locals) > 0 {
		c.locals[len(c.locals)-1][name] = v
		return
	}
	c.component[name] = v
}

// AssignAtomic evaluates compute and assigns its result in one atomic step
// when the target is a Session or Application name. During compute, reads of
// the target scope see the locked store directly, so read-modify-write
// sequences cannot interleave with other requests. For unshared targets it
// degenerates to compute-then-Assign.
func (c *Context) AssignAtomic(name string, compute func(r expr.Resolver) (expr.Object, error)) error {
	prefix, rest := splitScoped(name)

	var store *Store
	switch prefix {
	case ScopeApplication:
		store = c.app
	case ScopeSession:
		store = c.session
	}

	if store == nil {
		v, err := compute(c)
		if err != nil {
			return err
		}
		c.Assign(name, v)
		return nil
	}

	return store.Update(rest, func(view map[string]expr.Object) (expr.Object, error) {
		return compute(&lockedResolver{ctx: c, prefix: prefix, view: view})
	})
}

// lockedResolver resolves names while a store lock is held: names in the
// locked scope read the raw view, everything else falls back to the context.
// Without the bypass, resolving application.x inside Store.Update would
// re-lock the store and deadlock.
type lockedResolver struct {
	ctx    *Context
	prefix string
	view   map[string]expr.Object
}

func (l *lockedResolver) Resolve(name string) (expr.Object, bool) {
	prefix, rest := splitScoped(name)
	if prefix == l.prefix {
		v, ok := l.view[rest]
		return v, ok
	}
	return l.ctx.Resolve(name)
}

// Fork creates a context for a called component: it shares the Application
// and Session stores and the Request frame, but gets a fresh Component frame
// and an empty Local stack, so callee bindings never leak into the caller.
func (c *Context) Fork() *Context {
	return &Context{
		app:       c.app,
		session:   c.session,
		request:   c.request,
		component: make(map[string]expr.Object),
	}
}

// SetComponent binds a name in the Component frame, used when installing a
// called component's parameters.
func (c *Context) SetComponent(name string, v expr.Object) {
	c.component[name] = v
}

// RequestValues returns a copy of the request scope, for host inspection.
func (c *Context) RequestValues() map[string]expr.Object {
	out := make(map[string]expr.Object, len(c.request))
	for k, v := range c.request {
		out[k] = v
	}
	return out
}

// SetRequest binds a name directly in the Request scope, used by the runtime
// to install bound parameters before execution.
func (c *Context) SetRequest(name string, v expr.Object) {
	c.request[name] = v
}
