// Package parser turns Quince DSL source into a SourceUnit. Recognized tags
// dispatch through a registry of per-tag handlers; unrecognized tags never
// fail: an uppercase, unprefixed name is a nested-component invocation and
// anything else passes through as literal HTML.
package parser

import (
	"encoding/xml"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
)

// Element is one raw parsed element handed to a tag handler. Children keep
// elements and character data interleaved in document order; a handler that
// only walked child elements would silently drop a bare {expr} sitting
// inside a <q:loop>.
type Element struct {
	Name     string // canonical tag name, e.g. "q:loop" or "div"
	Attrs    []ast.Attr
	Children []Child
	Position ast.Position
}

// Child is either a nested *Element or a Text run.
type Child struct {
	Element  *Element
	Text     string
	Position ast.Position
}

// Attr returns the value of a named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// MustAttr returns a required attribute or a parse error naming it.
func (e *Element) MustAttr(name string) (string, error) {
	if v, ok := e.Attr(name); ok {
		return v, nil
	}
	return "", errors.NewParse(e.Position.Line, e.Position.Column,
		"<%s> requires attribute %q", e.Name, name)
}

// Text returns the element's concatenated character data.
func (e *Element) Text() string {
	var out strings.Builder
	for _, c := range e.Children {
		if c.Element == nil {
			out.WriteString(c.Text)
		}
	}
	return out.String()
}

// ChildElements returns only the element children, for tags whose content
// model is element-only (e.g. parameter lists).
func (e *Element) ChildElements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Element != nil {
			out = append(out, c.Element)
		}
	}
	return out
}

// TagHandler converts one recognized element into an AST node. parseBody is
// the recursive-parse callback for the element's children.
type TagHandler func(el *Element, parseBody func([]Child) ([]ast.Node, error)) (ast.Node, error)

// Parser parses DSL source through a startup-built tag registry.
type Parser struct {
	registry map[string]TagHandler
}

// New creates a parser with all built-in tags registered.
func New() *Parser {
	p := &Parser{registry: make(map[string]TagHandler)}
	p.registerBuiltins()
	return p
}

// Register adds or replaces the handler for a tag name. Adding a tag never
// touches the dispatch core.
func (p *Parser) Register(name string, handler TagHandler) {
	p.registry[name] = handler
}

// Parse parses one component or application file. The file name is used in
// error messages only.
func (p *Parser) Parse(name, src string) (*ast.SourceUnit, error) {
	root, err := decode(src)
	if err != nil {
		if qe, ok := err.(*errors.QuinceError); ok {
			return nil, qe.WithFile(name)
		}
		return nil, errors.AsQuince(err).WithFile(name)
	}

	unit, err := p.parseUnit(root)
	if err != nil {
		if qe, ok := err.(*errors.QuinceError); ok {
			return nil, qe.WithFile(name)
		}
		return nil, err
	}
	return unit, nil
}

// parseUnit handles the q:component / q:application root element.
func (p *Parser) parseUnit(root *Element) (*ast.SourceUnit, error) {
	var kind ast.UnitKind
	switch root.Name {
	case "q:component":
		kind = ast.UnitComponent
	case "q:application":
		kind = ast.UnitApplication
	default:
		return nil, errors.NewParse(root.Position.Line, root.Position.Column,
			"expected <q:component> or <q:application> at top level, got <%s>", root.Name)
	}

	unit := &ast.SourceUnit{Unit: kind}
	if name, ok := root.Attr("name"); ok {
		unit.Name = name
	}
	if auth, ok := root.Attr("requireAuth"); ok {
		unit.RequireAuth = auth == "true"
	}
	if roles, ok := root.Attr("roles"); ok {
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				unit.Roles = append(unit.Roles, r)
			}
		}
	}

	// Leading q:param elements declare the unit's parameters; everything
	// after the first non-param child is the body.
	body := root.Children
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
		unit.Params = append(unit.Params, decl)
		body = body[1:]
	}

	statements, err := p.parseBody(body)
	if err != nil {
		return nil, err
	}
	unit.Statements = statements
	return unit, nil
}

// parseBody converts interleaved children into ordered AST nodes.
// Whitespace-only text runs are dropped; everything else is kept in document
// order.
func (p *Parser) parseBody(children []Child) ([]ast.Node, error) {
	var nodes []ast.Node
	for _, c := range children {
		if c.Element == nil {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			nodes = append(nodes, &ast.Text{Position: c.Position, Text: c.Text})
			continue
		}
		node, err := p.parseElement(c.Element)
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// parseElement dispatches one element through the registry or the fallback
// policy.
func (p *Parser) parseElement(el *Element) (ast.Node, error) {
	if handler, ok := p.registry[el.Name]; ok {
		return handler(el, p.parseBody)
	}

	// Uppercase, unprefixed tags invoke an imported component.
	if isComponentName(el.Name) {
		children, err := p.parseBody(el.Children)
		if err != nil {
			return nil, err
		}
		return &ast.ComponentCall{
			Position: el.Position,
			Name:     el.Name,
			Attrs:    el.Attrs,
			Children: children,
		}, nil
	}

	// Everything else degrades to HTML passthrough, never an error.
	children, err := p.parseBody(el.Children)
	if err != nil {
		return nil, err
	}
	return &ast.Html{
		Position:    el.Position,
		Tag:         el.Name,
		Attrs:       el.Attrs,
		Children:    children,
		SelfClosing: len(el.Children) == 0 && isVoidTag(el.Name),
	}, nil
}

// isComponentName reports whether a tag name is an unprefixed name starting
// with an uppercase letter.
func isComponentName(name string) bool {
	if strings.ContainsRune(name, ':') {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// HTML void elements emitted self-closing when empty.
var voidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "meta": true, "link": true,
}

func isVoidTag(name string) bool {
	return voidTags[strings.ToLower(name)]
}

// parseParamDecl reads a q:param element into a declaration.
func parseParamDecl(el *Element) (ast.ParamDecl, error) {
	name, err := el.MustAttr("name")
	if err != nil {
		return ast.ParamDecl{}, err
	}
	decl := ast.ParamDecl{Name: name}
	if t, ok := el.Attr("type"); ok {
		decl.Type = t
	}
	if d, ok := el.Attr("default"); ok {
		decl.Default = d
	}
	if r, ok := el.Attr("required"); ok {
		decl.Required = r == "true"
	} else {
		// A parameter without a default is required.
		_, hasDefault := el.Attr("default")
		decl.Required = !hasDefault
	}
	return decl, nil
}

// decode reads the source into a raw element tree using encoding/xml's token
// stream. The decoder is non-strict so HTML-ish content (unknown entities,
// unclosed <br>) passes through; tag case is preserved, which the uppercase
// component-call rule depends on.
func decode(src string) (*Element, error) {
	lines := newLineIndex(src)

	d := xml.NewDecoder(strings.NewReader(src))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	var root *Element
	var stack []*Element

	for {
		offset := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			pos := lines.position(offset)
			return nil, errors.NewParse(pos.Line, pos.Column, "malformed markup: %s", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{
				Name:     canonicalName(t.Name),
				Position: lines.position(offset),
			}
			for _, a := range t.Attr {
				if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
					continue
				}
				el.Attrs = append(el.Attrs, ast.Attr{
					Name:    canonicalName(a.Name),
					Value:   a.Value,
					Dynamic: ast.HasExpression(a.Value),
				})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.NewParse(el.Position.Line, el.Position.Column,
						"unexpected second top-level element <%s>", el.Name)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, Child{Element: el, Position: el.Position})
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				pos := lines.position(offset)
				return nil, errors.NewParse(pos.Line, pos.Column,
					"unexpected closing tag </%s>", canonicalName(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, Child{
				Text:     string(t),
				Position: lines.position(offset),
			})
		case xml.Comment, xml.ProcInst, xml.Directive:
			// Dropped from the AST.
		}
	}

	if len(stack) > 0 {
		el := stack[len(stack)-1]
		return nil, errors.NewParse(el.Position.Line, el.Position.Column,
			"unclosed element <%s>", el.Name)
	}
	if root == nil {
		return nil, errors.NewParse(1, 1, "empty source: expected <q:component> or <q:application>")
	}
	return root, nil
}

// canonicalName renders an xml.Name with its prefix, "q:loop" style.
func canonicalName(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// lineIndex converts byte offsets to line/column positions.
type lineIndex struct {
	starts []int64 // byte offset of each line start
}

func newLineIndex(src string) *lineIndex {
	idx := &lineIndex{starts: []int64{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			idx.starts = append(idx.starts, int64(i+1))
		}
	}
	return idx
}

func (idx *lineIndex) position(offset int64) ast.Position {
	line := 1
	for i := len(idx.starts) - 1; i >= 0; i-- {
		if offset >= idx.starts[i] {
			line = i + 1
			break
		}
	}
	return ast.Position{Line: line, Column: int(offset-idx.starts[line-1]) + 1}
}
