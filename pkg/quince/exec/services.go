package exec

import (
	"strings"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/services/ai"
	"github.com/quincelang/quince/services/mail"
)

// execQuery runs SQL against a registered datasource and binds the result
// row set. Databinding expressions inside the SQL become driver placeholders
// with their values passed as bind parameters, never spliced into the text.
func execQuery(r *Run, node ast.Node) (Result, error) {
	q := node.(*ast.Query)

	if r.rt.services.Data == nil {
		return Continue, errors.NewExecution(nil, "no datasource registry configured")
	}
	ds, err := r.rt.services.Data.Get(q.Datasource)
	if err != nil {
		return Continue, err
	}

	sql, params, err := r.bindSQL(q.Text)
	if err != nil {
		return Continue, err
	}

	rows, err := ds.Execute(r.ctx, sql, params)
	if err != nil {
		return Continue, errors.NewExecution(err, "query %q failed", q.Var)
	}

	set := &expr.RowSet{Columns: rows.Columns}
	for _, row := range rows.Rows {
		d := &expr.Dict{Pairs: make(map[string]expr.Object, len(row))}
		for col, v := range row {
			d.Pairs[col] = expr.FromNative(v)
		}
		set.Rows = append(set.Rows, d)
	}
	r.scope.Assign(q.Var, set)
	return Continue, nil
}

// bindSQL replaces each {...} expression in the SQL text with a ?
// placeholder and collects the evaluated values as bind parameters, in
// textual order.
func (r *Run) bindSQL(text string) (string, []any, error) {
	var out strings.Builder
	var params []any
	for i := 0; i < len(text); {
		if text[i] != '{' {
			out.WriteByte(text[i])
			i++
			continue
		}
		end := expr.MatchingBrace(text, i)
		if end < 0 {
			out.WriteByte(text[i])
			i++
			continue
		}
		v, err := r.rt.exprs.Evaluate(text[i+1:end], r.scope)
		if err != nil {
			return "", nil, err
		}
		out.WriteString("?")
		params = append(params, expr.ToNative(v))
		i = end + 1
	}
	return out.String(), params, nil
}

// execMail renders the element body as the message text and hands it to the
// configured provider.
func execMail(r *Run, node ast.Node) (Result, error) {
	m := node.(*ast.Mail)

	if r.rt.services.Mail == nil {
		return Continue, errors.NewExecution(nil, "no mail provider configured")
	}

	to, err := r.Interpolate(m.To)
	if err != nil {
		return Continue, err
	}
	from, err := r.Interpolate(m.From)
	if err != nil {
		return Continue, err
	}
	subject, err := r.Interpolate(m.Subject)
	if err != nil {
		return Continue, err
	}

	r.PushCapture()
	res, bodyErr := r.ExecBody(m.Children)
	body := r.PopCapture()
	if bodyErr != nil {
		return Continue, bodyErr
	}
	if res.Signal != SignalNone {
		return res, nil
	}

	msg := &mail.Message{
		To:      splitList(to),
		From:    from,
		Subject: subject,
		Text:    strings.TrimSpace(body),
	}
	if _, err := r.rt.services.Mail.Send(r.ctx, msg); err != nil {
		return Continue, errors.NewExecution(err, "mail to %q failed", to)
	}
	return Continue, nil
}

// splitList splits a comma-separated attribute into trimmed entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func execLog(r *Run, node ast.Node) (Result, error) {
	l := node.(*ast.Log)

	msg, err := r.Interpolate(l.Message)
	if err != nil {
		return Continue, err
	}
	level := l.Level
	if level == "" {
		level = "info"
	}
	r.rt.logger.LogLine("["+level+"]", r.requestID, msg)
	return Continue, nil
}

// execRedirect records the target and stops execution. Output emitted before
// the redirect is kept; the host decides what to do with it.
func execRedirect(r *Run, node ast.Node) (Result, error) {
	red := node.(*ast.Redirect)

	url, err := r.Interpolate(red.URL)
	if err != nil {
		return Continue, err
	}
	r.out.RedirectTo = url
	return Result{Signal: SignalRedirect, Target: url}, nil
}

func execFlash(r *Run, node ast.Node) (Result, error) {
	f := node.(*ast.Flash)

	msg, err := r.Interpolate(f.Message)
	if err != nil {
		return Continue, err
	}
	kind := f.Type
	if kind == "" {
		kind = "info"
	}
	r.out.Flash = msg
	r.out.FlashType = kind
	return Continue, nil
}

// execLlm generates text from a prompt. The prompt comes from the attribute
// when present, otherwise from the rendered element body.
func execLlm(r *Run, node ast.Node) (Result, error) {
	l := node.(*ast.Llm)

	if r.rt.services.AI == nil {
		return Continue, errors.NewExecution(nil, "no AI client configured")
	}

	var prompt string
	if l.Prompt != "" {
		p, err := r.Interpolate(l.Prompt)
		if err != nil {
			return Continue, err
		}
		prompt = p
	} else {
		r.PushCapture()
		res, err := r.ExecBody(l.Children)
		prompt = strings.TrimSpace(r.PopCapture())
		if err != nil {
			return Continue, err
		}
		if res.Signal != SignalNone {
			return res, nil
		}
	}

	text, err := r.rt.services.AI.Generate(r.ctx, prompt, ai.Config{Model: l.Model})
	if err != nil {
		return Continue, errors.NewExecution(err, "llm %q failed", l.Var)
	}
	r.scope.Assign(l.Var, &expr.String{Value: text})
	return Continue, nil
}

// execAgent runs an agentic task and binds a dict holding the result text,
// the actions taken, and the iteration count.
func execAgent(r *Run, node ast.Node) (Result, error) {
	a := node.(*ast.Agent)

	if r.rt.services.AI == nil {
		return Continue, errors.NewExecution(nil, "no AI client configured")
	}

	task, err := r.Interpolate(a.Task)
	if err != nil {
		return Continue, err
	}
	instruction, err := r.Interpolate(a.Instruction)
	if err != nil {
		return Continue, err
	}

	result, err := r.rt.services.AI.RunAgent(r.ctx, instruction, splitList(a.Tools), task)
	if err != nil {
		return Continue, errors.NewExecution(err, "agent %q failed", a.Var)
	}

	actions := &expr.Array{}
	for _, act := range result.Actions {
		actions.Elements = append(actions.Elements, &expr.String{Value: act})
	}
	r.scope.Assign(a.Var, &expr.Dict{Pairs: map[string]expr.Object{
		"result":     &expr.String{Value: result.Result},
		"actions":    actions,
		"iterations": &expr.Integer{Value: int64(result.Iterations)},
	}})
	return Continue, nil
}

func execPublish(r *Run, node ast.Node) (Result, error) {
	p := node.(*ast.Publish)

	if r.rt.services.Messaging == nil {
		return Continue, errors.NewExecution(nil, "no messaging transport configured")
	}
	msg, err := r.Interpolate(p.Message)
	if err != nil {
		return Continue, err
	}
	if err := r.rt.services.Messaging.Publish(r.ctx, p.Topic, []byte(msg)); err != nil {
		return Continue, errors.NewExecution(err, "publish to topic %q failed", p.Topic)
	}
	return Continue, nil
}

// execFile runs one verb against the file store. Read binds the content as a
// string, list binds the entry names as an array.
func execFile(r *Run, node ast.Node) (Result, error) {
	f := node.(*ast.File)

	if r.rt.services.Files == nil {
		return Continue, errors.NewExecution(nil, "no file store configured")
	}
	path, err := r.Interpolate(f.Path)
	if err != nil {
		return Continue, err
	}

	switch f.Action {
	case "read":
		data, err := r.rt.services.Files.Read(path)
		if err != nil {
			return Continue, errors.NewExecution(err, "file read %q failed", path)
		}
		r.scope.Assign(f.Var, &expr.String{Value: string(data)})
	case "write":
		content, err := r.Interpolate(f.Content)
		if err != nil {
			return Continue, err
		}
		if err := r.rt.services.Files.Write(path, []byte(content)); err != nil {
			return Continue, errors.NewExecution(err, "file write %q failed", path)
		}
	case "list":
		names, err := r.rt.services.Files.List(path)
		if err != nil {
			return Continue, errors.NewExecution(err, "file list %q failed", path)
		}
		entries := &expr.Array{}
		for _, name := range names {
			entries.Elements = append(entries.Elements, &expr.String{Value: name})
		}
		r.scope.Assign(f.Var, entries)
	default:
		return Continue, errors.NewExecution(nil, "unknown file action %q", f.Action)
	}
	return Continue, nil
}

func execSend(r *Run, node ast.Node) (Result, error) {
	s := node.(*ast.Send)

	if r.rt.services.Messaging == nil {
		return Continue, errors.NewExecution(nil, "no messaging transport configured")
	}
	msg, err := r.Interpolate(s.Message)
	if err != nil {
		return Continue, err
	}
	if err := r.rt.services.Messaging.Send(r.ctx, s.Queue, []byte(msg)); err != nil {
		return Continue, errors.NewExecution(err, "send to queue %q failed", s.Queue)
	}
	return Continue, nil
}
