// Package exec executes parsed Quince components: a registry dispatches each
// AST node to its executor, executors evaluate databinding expressions
// against the scope chain, and the Runtime orchestrates one request from
// SourceUnit to rendered output.
package exec

import (
	"fmt"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"

	"github.com/quincelang/quince/services/ai"
	"github.com/quincelang/quince/services/datasource"
	"github.com/quincelang/quince/services/file"
	"github.com/quincelang/quince/services/mail"
	"github.com/quincelang/quince/services/messaging"
)

// Signal is the control-flow outcome of executing one node.
type Signal int

const (
	// SignalNone means execution continues with the next statement.
	SignalNone Signal = iota
	// SignalReturn short-circuits the enclosing function or component.
	SignalReturn
	// SignalRedirect stops execution and hands a target to the host.
	SignalRedirect
)

// Result carries a node's control signal. Return and Redirect are ordinary
// short-circuits, not errors.
type Result struct {
	Signal Signal
	Value  expr.Object // Return value, nil otherwise
	Target string      // Redirect target, "" otherwise
}

// Continue is the result of a node that neither returns nor redirects.
var Continue = Result{}

// ExecutorFunc executes one node kind against the current run.
type ExecutorFunc func(r *Run, node ast.Node) (Result, error)

// Registry dispatches nodes to executors by kind. It is built once at
// startup; adding a tag registers a new executor without touching dispatch.
type Registry struct {
	executors map[ast.NodeKind]ExecutorFunc
}

// NewRegistry creates a registry with every built-in executor installed.
func NewRegistry() *Registry {
	reg := &Registry{executors: make(map[ast.NodeKind]ExecutorFunc)}

	reg.Register(ast.KindText, execText)
	reg.Register(ast.KindHtml, execHtml)
	reg.Register(ast.KindSet, execSet)
	reg.Register(ast.KindLoop, execLoop)
	reg.Register(ast.KindIf, execIf)
	reg.Register(ast.KindFunction, execFunction)
	reg.Register(ast.KindCall, execCall)
	reg.Register(ast.KindReturn, execReturn)
	reg.Register(ast.KindImport, execImport)
	reg.Register(ast.KindSlot, execSlot)
	reg.Register(ast.KindComponentCall, execComponentCall)
	reg.Register(ast.KindQuery, execQuery)
	reg.Register(ast.KindMail, execMail)
	reg.Register(ast.KindLog, execLog)
	reg.Register(ast.KindRedirect, execRedirect)
	reg.Register(ast.KindFlash, execFlash)
	reg.Register(ast.KindLlm, execLlm)
	reg.Register(ast.KindAgent, execAgent)
	reg.Register(ast.KindPublish, execPublish)
	reg.Register(ast.KindSend, execSend)
	reg.Register(ast.KindFile, execFile)

	return reg
}

// Register adds or replaces the executor for a node kind.
func (reg *Registry) Register(kind ast.NodeKind, fn ExecutorFunc) {
	reg.executors[kind] = fn
}

// Execute dispatches one node. An unknown kind is an execution error: the
// node model is closed, so it means a registered tag without an executor.
func (reg *Registry) Execute(r *Run, node ast.Node) (Result, error) {
	fn, ok := reg.executors[node.Kind()]
	if !ok {
		return Continue, errors.NewExecution(nil, "no executor for node kind %q", node.Kind())
	}
	return fn(r, node)
}

// Services bundles the collaborator interfaces executors may call. Any field
// may be nil; using a tag whose collaborator is missing is an execution
// error, not a panic.
type Services struct {
	Data      *datasource.Registry
	Mail      mail.Provider
	AI        ai.Client
	Messaging messaging.Transport
	Files     file.Store
}

// Logger is the runtime's logging interface.
type Logger interface {
	Log(values ...any)
	LogLine(values ...any)
}

// defaultStdoutLogger writes to stdout.
type defaultStdoutLogger struct{}

func (l *defaultStdoutLogger) Log(values ...any) {
	for i, v := range values {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(v)
	}
}

func (l *defaultStdoutLogger) LogLine(values ...any) {
	l.Log(values...)
	fmt.Println()
}

// DefaultLogger is the default stdout logger.
var DefaultLogger Logger = &defaultStdoutLogger{}
