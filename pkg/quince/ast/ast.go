// Package ast defines the node model for parsed Quince components.
//
// The node set is closed: every tag the parser recognizes maps to exactly one
// variant here, and adding a tag means adding a variant plus an executor,
// never changing an existing variant. Nodes store literal attribute and
// expression text only; nothing is evaluated at parse time, which is what
// makes one parsed tree reusable across many requests with different data.
package ast

import (
	"bytes"
	"fmt"
	"strings"
)

// NodeKind identifies a node variant for executor dispatch.
type NodeKind string

const (
	KindText          NodeKind = "text"
	KindHtml          NodeKind = "html"
	KindSet           NodeKind = "set"
	KindLoop          NodeKind = "loop"
	KindIf            NodeKind = "if"
	KindFunction      NodeKind = "function"
	KindCall          NodeKind = "call"
	KindReturn        NodeKind = "return"
	KindImport        NodeKind = "import"
	KindSlot          NodeKind = "slot"
	KindComponentCall NodeKind = "componentCall"
	KindQuery         NodeKind = "query"
	KindMail          NodeKind = "mail"
	KindLog           NodeKind = "log"
	KindRedirect      NodeKind = "redirect"
	KindFlash         NodeKind = "flash"
	KindLlm           NodeKind = "llm"
	KindAgent         NodeKind = "agent"
	KindPublish       NodeKind = "publish"
	KindSend          NodeKind = "send"
	KindFile          NodeKind = "file"
)

// Position is a 1-based source location.
type Position struct {
	Line   int
	Column int
}

// Node is the interface implemented by every statement in a component body.
type Node interface {
	Kind() NodeKind
	Pos() Position
	String() string
	node() // marker method
}

// BodyNode is implemented by variants that own an ordered child body.
type BodyNode interface {
	Node
	Body() []Node
}

// Attr is one raw attribute on an element. Value is the literal attribute
// text; Dynamic is true when the text contains a {...} databinding
// expression that must be evaluated at render time.
type Attr struct {
	Name    string
	Value   string
	Dynamic bool
}

// ParamDecl declares one component or function parameter.
type ParamDecl struct {
	Name     string
	Type     string // "string", "number", "boolean", "array", "any" ("" means any)
	Default  string // literal or {...} expression text; "" when none declared
	Required bool
}

// UnitKind distinguishes top-level component and application definitions.
type UnitKind string

const (
	UnitComponent   UnitKind = "component"
	UnitApplication UnitKind = "application"
)

// SourceUnit is one parsed component or application definition. It is
// created once per file version and never mutated afterwards, so it is safe
// to cache and share between concurrent requests.
type SourceUnit struct {
	Name        string
	Unit        UnitKind
	Params      []ParamDecl
	RequireAuth bool
	Roles       []string
	Statements  []Node
}

// Param returns the declared parameter with the given name, or nil.
func (u *SourceUnit) Param(name string) *ParamDecl {
	for i := range u.Params {
		if u.Params[i].Name == name {
			return &u.Params[i]
		}
	}
	return nil
}

func (u *SourceUnit) String() string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "<q:%s name=%q>", u.Unit, u.Name)
	for _, s := range u.Statements {
		out.WriteString(s.String())
	}
	fmt.Fprintf(&out, "</q:%s>", u.Unit)
	return out.String()
}

// Text is character data appearing between elements, kept in document order.
// It may contain {...} expressions interpolated at render time.
type Text struct {
	Position Position
	Text     string
}

func (t *Text) Kind() NodeKind { return KindText }
func (t *Text) Pos() Position  { return t.Position }
func (t *Text) String() string { return t.Text }
func (t *Text) node()          {}

// Html is a passthrough element the parser did not recognize as a Quince
// tag. It re-emits the tag with its attributes, evaluating any dynamic ones.
type Html struct {
	Position    Position
	Tag         string
	Attrs       []Attr
	Children    []Node
	SelfClosing bool
}

func (h *Html) Kind() NodeKind { return KindHtml }
func (h *Html) Pos() Position  { return h.Position }
func (h *Html) Body() []Node   { return h.Children }
func (h *Html) node()          {}
func (h *Html) String() string {
	var out bytes.Buffer
	out.WriteString("<" + h.Tag)
	for _, a := range h.Attrs {
		fmt.Fprintf(&out, " %s=%q", a.Name, a.Value)
	}
	if h.SelfClosing {
		out.WriteString("/>")
		return out.String()
	}
	out.WriteString(">")
	for _, c := range h.Children {
		out.WriteString(c.String())
	}
	out.WriteString("</" + h.Tag + ">")
	return out.String()
}

// Set assigns the value of an expression to a variable. The name may carry
// an explicit scope prefix (session.x, application.x, request.x).
type Set struct {
	Position Position
	Name     string
	Value    string // literal or {...} expression text
}

func (s *Set) Kind() NodeKind { return KindSet }
func (s *Set) Pos() Position  { return s.Position }
func (s *Set) String() string { return fmt.Sprintf(`<q:set name=%q value=%q/>`, s.Name, s.Value) }
func (s *Set) node()          {}

// LoopType selects the iteration source of a Loop.
type LoopType string

const (
	LoopRange LoopType = "range"
	LoopArray LoopType = "array" // also covers type="list"
	LoopQuery LoopType = "query"
)

// Loop iterates its body over a numeric range, an ordered sequence, or a
// query row set. Var is bound fresh each iteration along with a 1-based
// companion counter named Var + "_count".
type Loop struct {
	Position Position
	Type     LoopType
	Var      string
	From     string // range: expression text, inclusive start
	To       string // range: expression text, inclusive end
	Step     string // range: expression text, "" means 1
	Items    string // array/list: expression text yielding the sequence
	Query    string // query: name of a bound row set
	Index    string // array/list: optional index variable name
	Children []Node
}

func (l *Loop) Kind() NodeKind { return KindLoop }
func (l *Loop) Pos() Position  { return l.Position }
func (l *Loop) Body() []Node   { return l.Children }
func (l *Loop) node()          {}
func (l *Loop) String() string {
	var out bytes.Buffer
	fmt.Fprintf(&out, `<q:loop type=%q var=%q>`, l.Type, l.Var)
	for _, c := range l.Children {
		out.WriteString(c.String())
	}
	out.WriteString("</q:loop>")
	return out.String()
}

// IfBranch is one condition/body pair of an If chain.
type IfBranch struct {
	Condition string // expression text
	Children  []Node
}

// If is an if/elseif/else chain. Branches are evaluated top to bottom and
// exactly the first true branch executes; Else may be empty.
type If struct {
	Position Position
	Branches []IfBranch
	Else     []Node
}

func (i *If) Kind() NodeKind { return KindIf }
func (i *If) Pos() Position  { return i.Position }
func (i *If) node()          {}
func (i *If) String() string {
	var out bytes.Buffer
	for n, b := range i.Branches {
		if n == 0 {
			fmt.Fprintf(&out, `<q:if condition=%q>`, b.Condition)
		} else {
			fmt.Fprintf(&out, `<q:elseif condition=%q>`, b.Condition)
		}
		for _, c := range b.Children {
			out.WriteString(c.String())
		}
	}
	if len(i.Else) > 0 {
		out.WriteString("<q:else>")
		for _, c := range i.Else {
			out.WriteString(c.String())
		}
	}
	out.WriteString("</q:if>")
	return out.String()
}

// Function declares a named, reusable statement sequence with typed,
// defaultable parameters. Declaration registers the function in the current
// request; it runs only when called.
type Function struct {
	Position Position
	Name     string
	Params   []ParamDecl
	Children []Node
}

func (f *Function) Kind() NodeKind { return KindFunction }
func (f *Function) Pos() Position  { return f.Position }
func (f *Function) Body() []Node   { return f.Children }
func (f *Function) node()          {}
func (f *Function) String() string {
	return fmt.Sprintf(`<q:function name=%q>...</q:function>`, f.Name)
}

// Call invokes a previously declared function, optionally binding the result.
type Call struct {
	Position Position
	Function string
	Args     []Attr // argument name/value pairs, values may be dynamic
	Result   string // variable to bind the return value to; "" discards it
}

func (c *Call) Kind() NodeKind { return KindCall }
func (c *Call) Pos() Position  { return c.Position }
func (c *Call) String() string { return fmt.Sprintf(`<q:call function=%q/>`, c.Function) }
func (c *Call) node()          {}

// Return short-circuits the enclosing function (or component) with an
// optional value.
type Return struct {
	Position Position
	Value    string // expression text; "" returns null
}

func (r *Return) Kind() NodeKind { return KindReturn }
func (r *Return) Pos() Position  { return r.Position }
func (r *Return) String() string { return fmt.Sprintf(`<q:return value=%q/>`, r.Value) }
func (r *Return) node()          {}

// Import binds a component file to a local name usable by later
// component-call elements in the same file.
type Import struct {
	Position Position
	Name     string // local tag name, conventionally uppercase
	Src      string // component file path
}

func (i *Import) Kind() NodeKind { return KindImport }
func (i *Import) Pos() Position  { return i.Position }
func (i *Import) String() string { return fmt.Sprintf(`<q:import name=%q src=%q/>`, i.Name, i.Src) }
func (i *Import) node()          {}

// Slot marks the substitution point where a caller's nested content is
// rendered inside a called component. One default slot per component.
type Slot struct {
	Position Position
}

func (s *Slot) Kind() NodeKind { return KindSlot }
func (s *Slot) Pos() Position  { return s.Position }
func (s *Slot) String() string { return "<q:slot/>" }
func (s *Slot) node()          {}

// ComponentCall invokes an imported component: attributes bind to the
// callee's declared parameters and child content fills its default slot.
type ComponentCall struct {
	Position Position
	Name     string
	Attrs    []Attr
	Children []Node
}

func (c *ComponentCall) Kind() NodeKind { return KindComponentCall }
func (c *ComponentCall) Pos() Position  { return c.Position }
func (c *ComponentCall) Body() []Node   { return c.Children }
func (c *ComponentCall) node()          {}
func (c *ComponentCall) String() string {
	var out bytes.Buffer
	out.WriteString("<" + c.Name)
	for _, a := range c.Attrs {
		fmt.Fprintf(&out, " %s=%q", a.Name, a.Value)
	}
	out.WriteString(">")
	for _, ch := range c.Children {
		out.WriteString(ch.String())
	}
	out.WriteString("</" + c.Name + ">")
	return out.String()
}

// Query runs SQL text against a named datasource and binds the row set.
type Query struct {
	Position   Position
	Var        string // variable to bind the row set to
	Datasource string
	Text       string // SQL text, may contain {...} bind parameters
}

func (q *Query) Kind() NodeKind { return KindQuery }
func (q *Query) Pos() Position  { return q.Position }
func (q *Query) String() string { return fmt.Sprintf(`<q:query name=%q>...</q:query>`, q.Var) }
func (q *Query) node()          {}

// Mail sends an email through the configured provider. The body is rendered
// like any other statement sequence and becomes the message text.
type Mail struct {
	Position Position
	To       string // dynamic attribute text
	From     string
	Subject  string
	Children []Node
}

func (m *Mail) Kind() NodeKind { return KindMail }
func (m *Mail) Pos() Position  { return m.Position }
func (m *Mail) Body() []Node   { return m.Children }
func (m *Mail) String() string { return fmt.Sprintf(`<q:mail to=%q subject=%q/>`, m.To, m.Subject) }
func (m *Mail) node()          {}

// Log emits a message through the runtime logger.
type Log struct {
	Position Position
	Message  string // dynamic text
	Level    string // "info" unless specified
}

func (l *Log) Kind() NodeKind { return KindLog }
func (l *Log) Pos() Position  { return l.Position }
func (l *Log) String() string { return fmt.Sprintf(`<q:log message=%q/>`, l.Message) }
func (l *Log) node()          {}

// Redirect signals the host to redirect; it stops execution without error.
type Redirect struct {
	Position Position
	URL      string // dynamic text
}

func (r *Redirect) Kind() NodeKind { return KindRedirect }
func (r *Redirect) Pos() Position  { return r.Position }
func (r *Redirect) String() string { return fmt.Sprintf(`<q:redirect url=%q/>`, r.URL) }
func (r *Redirect) node()          {}

// Flash records a one-shot message for the host to surface after redirect.
type Flash struct {
	Position Position
	Message  string // dynamic text
	Type     string // "info", "error", ...
}

func (f *Flash) Kind() NodeKind { return KindFlash }
func (f *Flash) Pos() Position  { return f.Position }
func (f *Flash) String() string { return fmt.Sprintf(`<q:flash message=%q/>`, f.Message) }
func (f *Flash) node()          {}

// Llm asks the AI collaborator to generate text from a prompt and binds the
// result.
type Llm struct {
	Position Position
	Var      string
	Model    string
	Prompt   string // dynamic text; body text is used when the attr is empty
	Children []Node
}

func (l *Llm) Kind() NodeKind { return KindLlm }
func (l *Llm) Pos() Position  { return l.Position }
func (l *Llm) Body() []Node   { return l.Children }
func (l *Llm) String() string { return fmt.Sprintf(`<q:llm name=%q model=%q/>`, l.Var, l.Model) }
func (l *Llm) node()          {}

// Agent runs an agent loop through the AI collaborator and binds the result.
type Agent struct {
	Position    Position
	Var         string
	Instruction string // dynamic text
	Tools       string // comma-separated tool names
	Task        string // dynamic text
}

func (a *Agent) Kind() NodeKind { return KindAgent }
func (a *Agent) Pos() Position  { return a.Position }
func (a *Agent) String() string { return fmt.Sprintf(`<q:agent name=%q task=%q/>`, a.Var, a.Task) }
func (a *Agent) node()          {}

// Publish publishes a message to a topic on the messaging transport.
type Publish struct {
	Position Position
	Topic    string
	Message  string // dynamic text
}

func (p *Publish) Kind() NodeKind { return KindPublish }
func (p *Publish) Pos() Position  { return p.Position }
func (p *Publish) String() string { return fmt.Sprintf(`<q:publish topic=%q/>`, p.Topic) }
func (p *Publish) node()          {}

// Send sends a message to a queue on the messaging transport.
type Send struct {
	Position Position
	Queue    string
	Message  string // dynamic text
}

func (s *Send) Kind() NodeKind { return KindSend }
func (s *Send) Pos() Position  { return s.Position }
func (s *Send) String() string { return fmt.Sprintf(`<q:send queue=%q/>`, s.Queue) }
func (s *Send) node()          {}

// File performs one verb against the configured file store. Read and list
// bind their result; write takes its content from an attribute or the element
// body.
type File struct {
	Position Position
	Action   string // read, write, list
	Path     string // dynamic text
	Var      string // read and list only
	Content  string // dynamic text, write only
}

func (f *File) Kind() NodeKind { return KindFile }
func (f *File) Pos() Position  { return f.Position }
func (f *File) String() string { return fmt.Sprintf(`<q:file action=%q path=%q/>`, f.Action, f.Path) }
func (f *File) node()          {}

// HasExpression reports whether s contains a {...} databinding expression.
func HasExpression(s string) bool {
	open := strings.IndexByte(s, '{')
	return open >= 0 && strings.IndexByte(s[open:], '}') > 0
}
