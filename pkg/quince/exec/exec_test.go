package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/quincelang/quince/pkg/quince/ast"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/parser"
	"github.com/quincelang/quince/pkg/quince/scope"
)

func parseUnit(t *testing.T, src string) *ast.SourceUnit {
	t.Helper()
	unit, err := parser.New().Parse("test.qml", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return unit
}

func runComponent(t *testing.T, rt *Runtime, src string, params map[string]expr.Object) (*Output, error) {
	t.Helper()
	unit := parseUnit(t, src)
	return rt.ExecuteComponent(context.Background(), unit, params, scope.NewStore(), scope.NewStore())
}

// renderHTML executes a component with no services and returns its rendered
// output, failing the test on any error.
func renderHTML(t *testing.T, src string) string {
	t.Helper()
	out, err := runComponent(t, NewRuntime(Options{Logger: NullLogger()}), src, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return out.HTML()
}

// renderError executes a component expecting failure and returns the error.
func renderError(t *testing.T, src string) *errors.QuinceError {
	t.Helper()
	_, err := runComponent(t, NewRuntime(Options{Logger: NullLogger()}), src, nil)
	if err == nil {
		t.Fatal("Expected an error")
	}
	return errors.AsQuince(err)
}

// testLogger collects log lines for assertions.
type testLogger struct {
	lines []string
}

func (l *testLogger) Log(values ...any) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	l.lines = append(l.lines, strings.Join(parts, " "))
}

func (l *testLogger) LogLine(values ...any) { l.Log(values...) }

// NullLogger discards everything; tests that do not assert on logs use it.
func NullLogger() Logger { return &testLogger{} }

func TestRenderStaticMarkup(t *testing.T) {
	got := renderHTML(t, `<q:component name="Page"><h1>Hello</h1></q:component>`)
	if got != "<h1>Hello</h1>" {
		t.Errorf("got %q", got)
	}
}

func TestTextInterpolation(t *testing.T) {
	got := renderHTML(t, `<q:component name="T"><q:set name="user" value="Ada"/><p>Hi {user}!</p></q:component>`)
	if got != "<p>Hi Ada!</p>" {
		t.Errorf("got %q", got)
	}
}

func TestSetValueKeepsType(t *testing.T) {
	got := renderHTML(t, `<q:component name="T"><q:set name="n" value="42"/>{n + 1}</q:component>`)
	if got != "43" {
		t.Errorf("got %q", got)
	}
}

func TestSetBodyValue(t *testing.T) {
	got := renderHTML(t, `<q:component name="T"><q:set name="greeting">hello</q:set>{greeting}</q:component>`)
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestRangeLoopSum(t *testing.T) {
	src := `<q:component name="T"><q:set name="total" value="0"/><q:loop var="i" from="1" to="5"><q:set name="total" value="{total + i}"/></q:loop>{total}</q:component>`
	if got := renderHTML(t, src); got != "15" {
		t.Errorf("Expected 15, got %q", got)
	}
}

func TestRangeLoopSumIntoRequestScope(t *testing.T) {
	src := `<q:component name="T"><q:loop var="i" from="1" to="5"><q:set name="request.total" value="{request.total + i}"/></q:loop>{request.total}</q:component>`
	if got := renderHTML(t, src); got != "15" {
		t.Errorf("Expected 15, got %q", got)
	}
}

func TestLoopVarShadowsOuterBinding(t *testing.T) {
	src := `<q:component name="T"><q:set name="i" value="99"/><q:loop var="i" from="1" to="3">{i}</q:loop>{i}</q:component>`
	if got := renderHTML(t, src); got != "12399" {
		t.Errorf("got %q", got)
	}
}

func TestRangeLoopVarAndCounter(t *testing.T) {
	src := `<q:component name="T"><q:loop var="i" from="5" to="7"><p>{i}-{i_count}</p></q:loop></q:component>`
	if got := renderHTML(t, src); got != "<p>5-1</p><p>6-2</p><p>7-3</p>" {
		t.Errorf("got %q", got)
	}
}

func TestRangeLoopNegativeStep(t *testing.T) {
	src := `<q:component name="T"><q:loop var="i" from="3" to="1" step="-1">{i}</q:loop></q:component>`
	if got := renderHTML(t, src); got != "321" {
		t.Errorf("got %q", got)
	}
}

func TestLoopZeroStepIsError(t *testing.T) {
	src := `<q:component name="T"><q:loop var="i" from="1" to="3" step="0">x</q:loop></q:component>`
	qe := renderError(t, src)
	if !strings.Contains(qe.Message, "step") {
		t.Errorf("error should mention step, got %q", qe.Message)
	}
}

func TestLoopVarDoesNotLeak(t *testing.T) {
	src := `<q:component name="T"><q:loop var="i" from="1" to="3">.</q:loop>[{i}]</q:component>`
	if got := renderHTML(t, src); got != "...[]" {
		t.Errorf("loop variable leaked: %q", got)
	}
}

func TestArrayLoopWithIndex(t *testing.T) {
	src := `<q:component name="T"><q:set name="items" value="{[&quot;a&quot;, &quot;b&quot;]}"/><q:loop var="item" items="{items}" index="n">{item}{n}</q:loop></q:component>`
	if got := renderHTML(t, src); got != "a0b1" {
		t.Errorf("got %q", got)
	}
}

func TestEmptyArrayLoopRunsZeroIterations(t *testing.T) {
	src := `<q:component name="T"><q:loop var="item" items="{[]}">x</q:loop>done</q:component>`
	if got := renderHTML(t, src); got != "done" {
		t.Errorf("got %q", got)
	}
}

func TestNullItemsLoopRunsZeroIterations(t *testing.T) {
	src := `<q:component name="T"><q:loop var="item" items="{missing}">x</q:loop>done</q:component>`
	if got := renderHTML(t, src); got != "done" {
		t.Errorf("got %q", got)
	}
}

func TestIfTakesFirstTrueBranchOnly(t *testing.T) {
	src := `<q:component name="T"><q:if condition="{true}">first<q:elseif condition="{true}">second</q:elseif><q:else>third</q:else></q:if></q:component>`
	if got := renderHTML(t, src); got != "first" {
		t.Errorf("got %q", got)
	}
}

func TestIfElseifBranch(t *testing.T) {
	src := `<q:component name="T"><q:if condition="{false}">first<q:elseif condition="{true}">second</q:elseif><q:else>third</q:else></q:if></q:component>`
	if got := renderHTML(t, src); got != "second" {
		t.Errorf("got %q", got)
	}
}

func TestIfElseBranch(t *testing.T) {
	src := `<q:component name="T"><q:if condition="{false}">first<q:else>third</q:else></q:if></q:component>`
	if got := renderHTML(t, src); got != "third" {
		t.Errorf("got %q", got)
	}
}

func TestHtmlAttributeValuesAreEscaped(t *testing.T) {
	src := `<q:component name="T"><q:set name="v" value="{&quot;\&quot;&gt;x&quot;}"/><a title="{v}">go</a></q:component>`
	got := renderHTML(t, src)
	if strings.Contains(got, `">x`) {
		t.Errorf("attribute value was not escaped: %q", got)
	}
	if !strings.Contains(got, "&#34;&gt;x") {
		t.Errorf("got %q", got)
	}
}

func TestStaticAttributeIsEscaped(t *testing.T) {
	src := `<q:component name="T"><a href="/x?a=1&amp;b=2">go</a></q:component>`
	if got := renderHTML(t, src); got != `<a href="/x?a=1&amp;b=2">go</a>` {
		t.Errorf("got %q", got)
	}
}

func TestVoidTagRendersSelfClosed(t *testing.T) {
	src := `<q:component name="T">a<br/>b</q:component>`
	if got := renderHTML(t, src); got != "a<br/>b" {
		t.Errorf("got %q", got)
	}
}

func TestComponentParamDefault(t *testing.T) {
	src := `<q:component name="T"><q:param name="color" default="red"/>{color}</q:component>`
	if got := renderHTML(t, src); got != "red" {
		t.Errorf("got %q", got)
	}
}

func TestComponentParamBinding(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="T"><q:param name="user"/>Hi {user}</q:component>`
	out, err := runComponent(t, rt, src, map[string]expr.Object{"user": &expr.String{Value: "Ada"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.HTML() != "Hi Ada" {
		t.Errorf("got %q", out.HTML())
	}
}

func TestMissingRequiredParam(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="Profile"><q:param name="user"/>Hi {user}</q:component>`
	_, err := runComponent(t, rt, src, nil)
	if err == nil {
		t.Fatal("Expected a parameter error")
	}
	qe := errors.AsQuince(err)
	if qe.Class != errors.ClassParam {
		t.Errorf("Expected param class, got %q", qe.Class)
	}
	if qe.Param != "user" {
		t.Errorf("error should name the parameter, got %q", qe.Param)
	}
	if !strings.Contains(qe.Message, "component Profile") {
		t.Errorf("error should name the component, got %q", qe.Message)
	}
}

func TestParamNumberCoercion(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="T"><q:param name="n" type="number"/>{n + 1}</q:component>`
	out, err := runComponent(t, rt, src, map[string]expr.Object{"n": &expr.String{Value: "42"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.HTML() != "43" {
		t.Errorf("got %q", out.HTML())
	}
}

func TestParamNumberCoercionFailure(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="T"><q:param name="n" type="number"/>{n}</q:component>`
	_, err := runComponent(t, rt, src, map[string]expr.Object{"n": &expr.String{Value: "abc"}})
	if err == nil {
		t.Fatal("Expected a coercion error")
	}
	if errors.AsQuince(err).Class != errors.ClassParam {
		t.Errorf("Expected param class, got %q", errors.AsQuince(err).Class)
	}
}

func TestSessionScopeSurvivesRequests(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	app := scope.NewStore()
	session := scope.NewStore()

	unit := parseUnit(t, `<q:component name="T"><q:set name="session.views" value="{session.views + 1}"/>{session.views}</q:component>`)
	for i := 1; i <= 3; i++ {
		out, err := rt.ExecuteComponent(context.Background(), unit, nil, app, session)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if want := fmt.Sprintf("%d", i); out.HTML() != want {
			t.Errorf("request %d: got %q, want %q", i, out.HTML(), want)
		}
	}
}

func TestApplicationScopeSharedAcrossSessions(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	app := scope.NewStore()

	unit := parseUnit(t, `<q:component name="T"><q:set name="application.hits" value="{application.hits + 1}"/>{application.hits}</q:component>`)
	for i := 1; i <= 2; i++ {
		out, err := rt.ExecuteComponent(context.Background(), unit, nil, app, scope.NewStore())
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("%d", i); out.HTML() != want {
			t.Errorf("got %q, want %q", out.HTML(), want)
		}
	}
}

// A session-prefixed write must not satisfy a later unqualified read.
func TestSessionWriteInvisibleToUnqualifiedRead(t *testing.T) {
	src := `<q:component name="T"><q:set name="session.x" value="9"/>[{x}]:[{session.x}]</q:component>`
	if got := renderHTML(t, src); got != "[]:[9]" {
		t.Errorf("got %q", got)
	}
}

// Unqualified names fall through to Request when Local and Component lack a
// binding.
func TestUnqualifiedReadFallsThroughToRequest(t *testing.T) {
	src := `<q:component name="T"><q:set name="request.x" value="7"/>{x}</q:component>`
	if got := renderHTML(t, src); got != "7" {
		t.Errorf("got %q", got)
	}
}

// Concurrent requests incrementing a shared counter must not lose updates.
func TestConcurrentApplicationCounter(t *testing.T) {
	const workers = 8
	const increments = 50

	rt := NewRuntime(Options{Logger: NullLogger()})
	app := scope.NewStore()
	unit := parseUnit(t, fmt.Sprintf(
		`<q:component name="T"><q:loop var="i" from="1" to="%d"><q:set name="application.counter" value="{application.counter + 1}"/></q:loop></q:component>`,
		increments))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.ExecuteComponent(context.Background(), unit, nil, app, scope.NewStore())
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	v, ok := app.Get("counter")
	if !ok {
		t.Fatal("counter never written")
	}
	n, ok := v.(*expr.Integer)
	if !ok || n.Value != workers*increments {
		t.Errorf("Expected %d, got %v", workers*increments, v.Inspect())
	}
}

func TestRedirectStopsExecution(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="T">before<q:redirect url="/next"/>after</q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.Redirected() || out.RedirectTo != "/next" {
		t.Errorf("Expected redirect to /next, got %+v", out)
	}
	if strings.Contains(out.HTML(), "after") {
		t.Error("statements after the redirect still ran")
	}
}

func TestRedirectInsideLoopPropagates(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	src := `<q:component name="T"><q:loop var="i" from="1" to="10">{i}<q:if condition="{i == 2}"><q:redirect url="/stop"/></q:if></q:loop></q:component>`
	out, err := runComponent(t, rt, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.RedirectTo != "/stop" {
		t.Errorf("Expected /stop, got %q", out.RedirectTo)
	}
	if out.HTML() != "12" {
		t.Errorf("loop ran past the redirect: %q", out.HTML())
	}
}

func TestFlashDefaultsToInfo(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	out, err := runComponent(t, rt, `<q:component name="T"><q:flash message="Saved"/></q:component>`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Flash != "Saved" || out.FlashType != "info" {
		t.Errorf("got flash %q type %q", out.Flash, out.FlashType)
	}
}

func TestFlashTypeAttr(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	out, err := runComponent(t, rt, `<q:component name="T"><q:flash message="Nope" type="error"/></q:component>`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.FlashType != "error" {
		t.Errorf("got type %q", out.FlashType)
	}
}

func TestRequireAuthWithoutAuthorizer(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	_, err := runComponent(t, rt, `<q:component name="Admin" requireAuth="true">secret</q:component>`, nil)
	if err == nil {
		t.Fatal("Expected an error with no authorizer configured")
	}
}

func TestRequireAuthDenied(t *testing.T) {
	rt := NewRuntime(Options{
		Logger: NullLogger(),
		Authorize: func(_ context.Context, roles []string) error {
			return fmt.Errorf("not logged in")
		},
	})
	_, err := runComponent(t, rt, `<q:component name="Admin" requireAuth="true">secret</q:component>`, nil)
	if err == nil {
		t.Fatal("Expected denial")
	}
	if !strings.Contains(err.Error(), "denied") {
		t.Errorf("got %q", err.Error())
	}
}

func TestRequireAuthPassesRoles(t *testing.T) {
	var seen []string
	rt := NewRuntime(Options{
		Logger: NullLogger(),
		Authorize: func(_ context.Context, roles []string) error {
			seen = roles
			return nil
		},
	})
	out, err := runComponent(t, rt, `<q:component name="Admin" requireAuth="true" roles="admin, editor">ok</q:component>`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "ok" {
		t.Errorf("got %q", out.HTML())
	}
	if len(seen) != 2 || seen[0] != "admin" || seen[1] != "editor" {
		t.Errorf("authorizer saw roles %v", seen)
	}
}

func TestStepBudgetAbortsRunawayLoop(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger(), MaxSteps: 50})
	src := `<q:component name="T"><q:loop var="i" from="1" to="100000">x</q:loop></q:component>`
	_, err := runComponent(t, rt, src, nil)
	if err == nil {
		t.Fatal("Expected the step budget to abort")
	}
	if !strings.Contains(err.Error(), "step budget") {
		t.Errorf("got %q", err.Error())
	}
}

func TestCancelledContextAborts(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unit := parseUnit(t, `<q:component name="T">x</q:component>`)
	_, err := rt.ExecuteComponent(ctx, unit, nil, scope.NewStore(), scope.NewStore())
	if err == nil {
		t.Fatal("Expected a cancellation error")
	}
	if !strings.Contains(err.Error(), "aborted") {
		t.Errorf("got %q", err.Error())
	}
}

func TestExecutionErrorCarriesPosition(t *testing.T) {
	src := `<q:component name="T">
<p>{1 - true}</p>
</q:component>`
	qe := renderError(t, src)
	if qe.Line != 2 {
		t.Errorf("Expected line 2, got %d", qe.Line)
	}
	if qe.Class != errors.ClassEval {
		t.Errorf("Expected eval class, got %q", qe.Class)
	}
}

func TestLogTag(t *testing.T) {
	logger := &testLogger{}
	rt := NewRuntime(Options{Logger: logger})
	src := `<q:component name="T"><q:set name="user" value="Ada"/><q:log level="warn" message="seen {user}"/></q:component>`
	if _, err := runComponent(t, rt, src, nil); err != nil {
		t.Fatal(err)
	}
	if len(logger.lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(logger.lines))
	}
	line := logger.lines[0]
	if !strings.HasPrefix(line, "[warn] ") || !strings.HasSuffix(line, "seen Ada") {
		t.Errorf("got log line %q", line)
	}
}

func TestCustomExecutorRegistration(t *testing.T) {
	rt := NewRuntime(Options{Logger: NullLogger()})
	rt.Registry().Register(ast.KindText, func(r *Run, node ast.Node) (Result, error) {
		r.Emit("custom")
		return Continue, nil
	})
	out, err := runComponent(t, rt, `<q:component name="T">anything</q:component>`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML() != "custom" {
		t.Errorf("got %q", out.HTML())
	}
}
