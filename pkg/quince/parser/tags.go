package parser

import (
	"strings"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
)

// registerBuiltins installs the handler for every built-in tag. Adding a tag
// means adding one entry here plus one executor; the dispatch core never
// changes.
func (p *Parser) registerBuiltins() {
	p.Register("q:set", parseSet)
	p.Register("q:loop", parseLoop)
	p.Register("q:if", parseIf)
	p.Register("q:function", parseFunction)
	p.Register("q:call", parseCall)
	p.Register("q:return", parseReturn)
	p.Register("q:import", parseImport)
	p.Register("q:slot", parseSlot)
	p.Register("q:query", parseQuery)
	p.Register("q:mail", parseMail)
	p.Register("q:log", parseLog)
	p.Register("q:redirect", parseRedirect)
	p.Register("q:flash", parseFlash)
	p.Register("q:llm", parseLlm)
	p.Register("q:agent", parseAgent)
	p.Register("q:publish", parsePublish)
	p.Register("q:send", parseSend)
	p.Register("q:file", parseFile)

	// elseif/else are only meaningful inside q:if; reaching one here is a
	// nesting error, not HTML.
	p.Register("q:elseif", parseStrayBranch)
	p.Register("q:else", parseStrayBranch)
	p.Register("q:param", parseStrayParam)
}

func parseSet(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}
	value, ok := el.Attr("value")
	if !ok {
		value = strings.TrimSpace(el.Text())
	}
	return &ast.Set{Position: el.Position, Name: name, Value: value}, nil
}

func parseLoop(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	v, err := el.MustAttr("var")
	if err != nil {
		return nil, err
	}

	loop := &ast.Loop{Position: el.Position, Var: v}
	loop.Items, _ = el.Attr("items")
	loop.From, _ = el.Attr("from")
	loop.To, _ = el.Attr("to")
	loop.Step, _ = el.Attr("step")
	loop.Query, _ = el.Attr("query")
	loop.Index, _ = el.Attr("index")

	// The loop type may be given explicitly or inferred from which source
	// attributes are present.
	explicit, _ := el.Attr("type")
	switch {
	case explicit == "range" || (explicit == "" && loop.From != "" && loop.To != ""):
		if loop.From == "" || loop.To == "" {
			return nil, errors.NewParse(el.Position.Line, el.Position.Column,
				"<q:loop type=\"range\"> requires attributes \"from\" and \"to\"")
		}
		loop.Type = ast.LoopRange
	case explicit == "array" || explicit == "list" || (explicit == "" && loop.Items != ""):
		if loop.Items == "" {
			return nil, errors.NewParse(el.Position.Line, el.Position.Column,
				"<q:loop type=%q> requires attribute \"items\"", explicit)
		}
		loop.Type = ast.LoopArray
	case explicit == "query" || (explicit == "" && loop.Query != ""):
		if loop.Query == "" {
			return nil, errors.NewParse(el.Position.Line, el.Position.Column,
				"<q:loop type=\"query\"> requires attribute \"query\"")
		}
		loop.Type = ast.LoopQuery
	default:
		return nil, errors.NewParse(el.Position.Line, el.Position.Column,
			"<q:loop> needs from/to, items, or query attributes")
	}

	children, err := parseBody(el.Children)
	if err != nil {
		return nil, err
	}
	loop.Children = children
	return loop, nil
}

// parseIf builds an if/elseif/else chain. The branch elements nest inside
// q:if:
//
//	<q:if condition="{a}">...<q:elseif condition="{b}">...</q:elseif><q:else>...</q:else></q:if>
//
// Children of q:if before the first branch element form the first branch's
// body.
func parseIf(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	condition, err := el.MustAttr("condition")
	if err != nil {
		return nil, err
	}

	node := &ast.If{Position: el.Position}

	var firstBody []Child
	rest := el.Children
	for len(rest) > 0 {
		c := rest[0]
		if c.Element != nil && (c.Element.Name == "q:elseif" || c.Element.Name == "q:else") {
			break
		}
		firstBody = append(firstBody, c)
		rest = rest[1:]
	}

	body, err := parseBody(firstBody)
	if err != nil {
		return nil, err
	}
	node.Branches = append(node.Branches, ast.IfBranch{Condition: condition, Children: body})

	seenElse := false
	for _, c := range rest {
		if c.Element == nil {
			if strings.TrimSpace(c.Text) != "" {
				return nil, errors.NewParse(c.Position.Line, c.Position.Column,
					"text between branches of <q:if> must be inside a branch")
			}
			continue
		}
		branch := c.Element
		switch branch.Name {
		case "q:elseif":
			if seenElse {
				return nil, errors.NewParse(branch.Position.Line, branch.Position.Column,
					"<q:elseif> cannot follow <q:else>")
			}
			cond, err := branch.MustAttr("condition")
			if err != nil {
				return nil, err
			}
			body, err := parseBody(branch.Children)
			if err != nil {
				return nil, err
			}
			node.Branches = append(node.Branches, ast.IfBranch{Condition: cond, Children: body})
		case "q:else":
			if seenElse {
				return nil, errors.NewParse(branch.Position.Line, branch.Position.Column,
					"<q:if> allows a single <q:else>")
			}
			seenElse = true
			body, err := parseBody(branch.Children)
			if err != nil {
				return nil, err
			}
			node.Else = body
		default:
			return nil, errors.NewParse(branch.Position.Line, branch.Position.Column,
				"unexpected <%s> after the first branch of <q:if>", branch.Name)
		}
	}

	return node, nil
}

func parseFunction(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}

	fn := &ast.Function{Position: el.Position, Name: name}

	// Leading q:param children declare parameters; the rest is the body.
	body := el.Children
	for len(body) > 0 {
		c := body[0]
		if c.Element == nil {
			if strings.TrimSpace(c.Text) == "" {
				body = body[1:]
				continue
			}
			break
		}
		if c.Element.Name != "q:param" {
			break
		}
		decl, err := parseParamDecl(c.Element)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, decl)
		body = body[1:]
	}

	children, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	fn.Children = children
	return fn, nil
}

func parseCall(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	fn, err := el.MustAttr("function")
	if err != nil {
		return nil, err
	}
	call := &ast.Call{Position: el.Position, Function: fn}
	call.Result, _ = el.Attr("result")
	for _, a := range el.Attrs {
		if a.Name == "function" || a.Name == "result" {
			continue
		}
		call.Args = append(call.Args, a)
	}
	return call, nil
}

func parseReturn(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	value, _ := el.Attr("value")
	return &ast.Return{Position: el.Position, Value: value}, nil
}

func parseImport(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}
	src, err := el.MustAttr("src")
	if err != nil {
		return nil, err
	}
	return &ast.Import{Position: el.Position, Name: name, Src: src}, nil
}

func parseSlot(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	return &ast.Slot{Position: el.Position}, nil
}

func parseQuery(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}
	q := &ast.Query{Position: el.Position, Var: name, Text: strings.TrimSpace(el.Text())}
	q.Datasource, _ = el.Attr("datasource")
	if q.Text == "" {
		return nil, errors.NewParse(el.Position.Line, el.Position.Column,
			"<q:query> requires SQL text content")
	}
	return q, nil
}

func parseMail(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	to, err := el.MustAttr("to")
	if err != nil {
		return nil, err
	}
	subject, err := el.MustAttr("subject")
	if err != nil {
		return nil, err
	}
	m := &ast.Mail{Position: el.Position, To: to, Subject: subject}
	m.From, _ = el.Attr("from")
	children, err := parseBody(el.Children)
	if err != nil {
		return nil, err
	}
	m.Children = children
	return m, nil
}

func parseLog(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	message, ok := el.Attr("message")
	if !ok {
		message = strings.TrimSpace(el.Text())
	}
	l := &ast.Log{Position: el.Position, Message: message}
	l.Level, _ = el.Attr("level")
	return l, nil
}

func parseRedirect(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	url, err := el.MustAttr("url")
	if err != nil {
		return nil, err
	}
	return &ast.Redirect{Position: el.Position, URL: url}, nil
}

func parseFlash(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	message, ok := el.Attr("message")
	if !ok {
		message = strings.TrimSpace(el.Text())
	}
	f := &ast.Flash{Position: el.Position, Message: message}
	f.Type, _ = el.Attr("type")
	return f, nil
}

func parseLlm(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}
	l := &ast.Llm{Position: el.Position, Var: name}
	l.Model, _ = el.Attr("model")
	l.Prompt, _ = el.Attr("prompt")
	children, err := parseBody(el.Children)
	if err != nil {
		return nil, err
	}
	l.Children = children
	if l.Prompt == "" && len(l.Children) == 0 {
		return nil, errors.NewParse(el.Position.Line, el.Position.Column,
			"<q:llm> requires a prompt attribute or body content")
	}
	return l, nil
}

func parseAgent(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return nil, err
	}
	task, err := el.MustAttr("task")
	if err != nil {
		return nil, err
	}
	a := &ast.Agent{Position: el.Position, Var: name, Task: task}
	a.Instruction, _ = el.Attr("instruction")
	a.Tools, _ = el.Attr("tools")
	return a, nil
}

func parsePublish(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	topic, err := el.MustAttr("topic")
	if err != nil {
		return nil, err
	}
	message, ok := el.Attr("message")
	if !ok {
		message = strings.TrimSpace(el.Text())
	}
	return &ast.Publish{Position: el.Position, Topic: topic, Message: message}, nil
}

func parseSend(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	queue, err := el.MustAttr("queue")
	if err != nil {
		return nil, err
	}
	message, ok := el.Attr("message")
	if !ok {
		message = strings.TrimSpace(el.Text())
	}
	return &ast.Send{Position: el.Position, Queue: queue, Message: message}, nil
}

func parseFile(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	action, err := el.MustAttr("action")
	if err != nil {
		return nil, err
	}
	path, err := el.MustAttr("path")
	if err != nil {
		return nil, err
	}

	f := &ast.File{Position: el.Position, Action: action, Path: path}
	switch action {
	case "read", "list":
		if f.Var, err = el.MustAttr("var"); err != nil {
			return nil, err
		}
	case "write":
		content, ok := el.Attr("content")
		if !ok {
			content = strings.TrimSpace(el.Text())
		}
		f.Content = content
	default:
		return nil, errors.NewParse(el.Position.Line, el.Position.Column,
			"<q:file> action must be read, write or list, got %q", action)
	}
	return f, nil
}

func parseStrayBranch(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	return nil, errors.NewParse(el.Position.Line, el.Position.Column,
		"<%s> is only valid inside <q:if>", el.Name)
}

func parseStrayParam(el *Element, _ func([]Child) ([]ast.Node, error)) (ast.Node, error) {
	return nil, errors.NewParse(el.Position.Line, el.Position.Column,
		"<q:param> is only valid at the start of a component or function")
}
