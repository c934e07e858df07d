package exec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quincelang/quince/services/ai"
	"github.com/quincelang/quince/services/datasource"
	"github.com/quincelang/quince/services/file"
	"github.com/quincelang/quince/services/mail"
	"github.com/quincelang/quince/services/messaging"
)

func runtimeWith(svc Services) *Runtime {
	return NewRuntime(Options{Logger: NullLogger(), Services: svc})
}

func TestQueryBindsRowSet(t *testing.T) {
	ds := &datasource.Static{Result: &datasource.RowSet{
		Columns: []string{"name"},
		Rows: []map[string]any{
			{"name": "Ada"},
			{"name": "Grace"},
		},
	}}
	reg := datasource.NewRegistry()
	reg.Add("main", ds)
	rt := runtimeWith(Services{Data: reg})

	src := `<q:component name="T"><q:query name="users">SELECT name FROM users</q:query>{users.recordCount}:<q:loop var="u" query="users">{u.name} </q:loop></q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.HTML() != "2:Ada Grace " {
		t.Errorf("got %q", out.HTML())
	}
}

// Databinding expressions in SQL must become placeholders with bound values,
// never spliced text.
func TestQueryParameterizesExpressions(t *testing.T) {
	ds := &datasource.Static{}
	reg := datasource.NewRegistry()
	reg.Add("main", ds)
	rt := runtimeWith(Services{Data: reg})

	src := `<q:component name="T"><q:set name="id" value="7"/><q:set name="status" value="active"/><q:query name="r">SELECT * FROM orders WHERE user_id = {id} AND status = {status}</q:query></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(ds.Calls) != 1 {
		t.Fatalf("Expected 1 query, got %d", len(ds.Calls))
	}
	if ds.Calls[0] != "SELECT * FROM orders WHERE user_id = ? AND status = ?" {
		t.Errorf("got SQL %q", ds.Calls[0])
	}
	params := ds.Params[0]
	if len(params) != 2 || params[0] != int64(7) || params[1] != "active" {
		t.Errorf("got params %v", params)
	}
}

func TestQueryNamedDatasource(t *testing.T) {
	main := &datasource.Static{}
	audit := &datasource.Static{}
	reg := datasource.NewRegistry()
	reg.Add("main", main)
	reg.Add("audit", audit)
	rt := runtimeWith(Services{Data: reg})

	src := `<q:component name="T"><q:query name="r" datasource="audit">SELECT 1</q:query></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if len(main.Calls) != 0 || len(audit.Calls) != 1 {
		t.Errorf("query went to the wrong datasource: main=%d audit=%d", len(main.Calls), len(audit.Calls))
	}
}

func TestQueryUnknownDatasource(t *testing.T) {
	rt := runtimeWith(Services{Data: datasource.NewRegistry()})
	src := `<q:component name="T"><q:query name="r" datasource="nope">SELECT 1</q:query></q:component>`
	_, err := runComponent(t, rt, src, nil)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("got %v", err)
	}
}

func TestQueryWithoutRegistryIsError(t *testing.T) {
	rt := runtimeWith(Services{})
	src := `<q:component name="T"><q:query name="r">SELECT 1</q:query></q:component>`
	if _, err := runComponent(t, rt, src, nil); err == nil {
		t.Fatal("Expected an error with no datasource registry")
	}
}

func TestMailRendersBodyAndSends(t *testing.T) {
	log := &mail.Log{}
	rt := runtimeWith(Services{Mail: log})

	src := `<q:component name="T"><q:set name="user" value="Ada"/><q:mail to="{user}@example.com" from="app@example.com" subject="Welcome {user}">Hello {user}, thanks for signing up.</q:mail></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if len(m.To) != 1 || m.To[0] != "Ada@example.com" {
		t.Errorf("got to %v", m.To)
	}
	if m.Subject != "Welcome Ada" {
		t.Errorf("got subject %q", m.Subject)
	}
	if m.Text != "Hello Ada, thanks for signing up." {
		t.Errorf("got body %q", m.Text)
	}
}

func TestMailMultipleRecipients(t *testing.T) {
	log := &mail.Log{}
	rt := runtimeWith(Services{Mail: log})

	src := `<q:component name="T"><q:mail to="a@x.com, b@x.com" from="app@x.com" subject="s">body</q:mail></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if to := log.Messages()[0].To; len(to) != 2 || to[1] != "b@x.com" {
		t.Errorf("got to %v", to)
	}
}

func TestMailWithoutProviderIsError(t *testing.T) {
	rt := runtimeWith(Services{})
	src := `<q:component name="T"><q:mail to="a@x.com" subject="s">body</q:mail></q:component>`
	if _, err := runComponent(t, rt, src, nil); err == nil {
		t.Fatal("Expected an error with no mail provider")
	}
}

// The mail body is captured, not rendered to the page.
func TestMailBodyNotEmitted(t *testing.T) {
	rt := runtimeWith(Services{Mail: &mail.Log{}})
	src := `<q:component name="T">page<q:mail to="a@x.com" from="b@x.com" subject="s">secret body</q:mail></q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "page" {
		t.Errorf("mail body leaked into output: %q", out.HTML())
	}
}

func TestPublishInterpolatesMessage(t *testing.T) {
	mem := messaging.NewMemory()
	rt := runtimeWith(Services{Messaging: mem})

	src := `<q:component name="T"><q:set name="id" value="9"/><q:publish topic="orders" message="order {id} placed"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	got := mem.Published("orders")
	if len(got) != 1 || string(got[0]) != "order 9 placed" {
		t.Errorf("got %q", got)
	}
}

func TestPublishBodyContent(t *testing.T) {
	mem := messaging.NewMemory()
	rt := runtimeWith(Services{Messaging: mem})

	src := `<q:component name="T"><q:publish topic="events">something happened</q:publish></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if got := mem.Published("events"); len(got) != 1 || string(got[0]) != "something happened" {
		t.Errorf("got %q", got)
	}
}

func TestSendEnqueues(t *testing.T) {
	mem := messaging.NewMemory()
	rt := runtimeWith(Services{Messaging: mem})

	src := `<q:component name="T"><q:send queue="jobs" message="resize 4"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if got := mem.Published("jobs"); len(got) != 1 || string(got[0]) != "resize 4" {
		t.Errorf("got %q", got)
	}
}

func TestPublishWithoutTransportIsError(t *testing.T) {
	rt := runtimeWith(Services{})
	src := `<q:component name="T"><q:publish topic="t" message="m"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err == nil {
		t.Fatal("Expected an error with no transport")
	}
}

func TestLlmPromptAttribute(t *testing.T) {
	client := &ai.Static{Response: "A fine question."}
	rt := runtimeWith(Services{AI: client})

	src := `<q:component name="T"><q:set name="topic" value="rivers"/><q:llm name="answer" model="small" prompt="Tell me about {topic}"/>{answer}</q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "A fine question." {
		t.Errorf("got %q", out.HTML())
	}
	prompts := client.Prompts()
	if len(prompts) != 1 || prompts[0] != "Tell me about rivers" {
		t.Errorf("got prompts %v", prompts)
	}
}

func TestLlmBodyPrompt(t *testing.T) {
	client := &ai.Static{Response: "ok"}
	rt := runtimeWith(Services{AI: client})

	src := `<q:component name="T"><q:set name="n" value="3"/><q:llm name="v">Summarize {n} items</q:llm></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if prompts := client.Prompts(); prompts[0] != "Summarize 3 items" {
		t.Errorf("got prompts %v", prompts)
	}
}

func TestAgentBindsResultDict(t *testing.T) {
	client := &ai.Static{Agent: &ai.AgentResult{
		Result:     "done",
		Actions:    []string{"search", "write"},
		Iterations: 3,
	}}
	rt := runtimeWith(Services{AI: client})

	src := `<q:component name="T"><q:agent name="job" task="tidy up" instruction="be neat" tools="search, write"/>{job.result}:{job.iterations}:{job.actions.length}</q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "done:3:2" {
		t.Errorf("got %q", out.HTML())
	}
}

func TestLlmWithoutClientIsError(t *testing.T) {
	rt := runtimeWith(Services{})
	src := `<q:component name="T"><q:llm name="v" prompt="p"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err == nil {
		t.Fatal("Expected an error with no AI client")
	}
}

func TestFileReadBindsContent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := runtimeWith(Services{Files: file.NewLocal(root)})

	src := `<q:component name="T"><q:file action="read" path="greeting.txt" var="text"/>{text}</q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "hello" {
		t.Errorf("got %q", out.HTML())
	}
}

func TestFileWriteInterpolatesContent(t *testing.T) {
	root := t.TempDir()
	rt := runtimeWith(Services{Files: file.NewLocal(root)})

	src := `<q:component name="T"><q:set name="who" value="Ada"/><q:file action="write" path="out.txt" content="hi {who}"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hi Ada" {
		t.Errorf("got %q", string(data))
	}
}

func TestFileListBindsSortedNames(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	rt := runtimeWith(Services{Files: file.NewLocal(root)})

	src := `<q:component name="T"><q:file action="list" path="." var="names"/><q:loop var="n" items="{names}">{n} </q:loop></q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "a.txt b.txt " {
		t.Errorf("got %q", out.HTML())
	}
}

func TestFileWithoutStoreIsError(t *testing.T) {
	rt := runtimeWith(Services{})
	src := `<q:component name="T"><q:file action="read" path="x.txt" var="v"/></q:component>`
	_, err := runComponent(t, rt, src, nil)
	if err == nil {
		t.Fatal("Expected an error with no file store")
	}
	if !strings.Contains(err.Error(), "file store") {
		t.Errorf("got %v", err)
	}
}

func TestFileReadEscapingRootIsError(t *testing.T) {
	rt := runtimeWith(Services{Files: file.NewLocal(t.TempDir())})
	src := `<q:component name="T"><q:file action="read" path="../outside.txt" var="v"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err == nil {
		t.Fatal("Expected an error for a path escaping the store root")
	}
}
