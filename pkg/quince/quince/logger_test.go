package quince

import (
	"context"
	"strings"
	"testing"
)

func TestBufferedLoggerCapturesLines(t *testing.T) {
	l := NewBufferedLogger()
	l.LogLine("one", 1)
	l.Log("two")
	l.LogLine("halves")

	lines := l.Lines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "one 1" {
		t.Errorf("got %q", lines[0])
	}
	if lines[1] != "twohalves" {
		t.Errorf("Log then LogLine should join into one line, got %q", lines[1])
	}
}

func TestBufferedLoggerReset(t *testing.T) {
	l := NewBufferedLogger()
	l.LogLine("x")
	l.Reset()
	if len(l.Lines()) != 0 || l.String() != "" {
		t.Error("Reset did not clear captured output")
	}
}

func TestWriterLogger(t *testing.T) {
	var sb strings.Builder
	l := WriterLogger(&sb)
	l.LogLine("hello", "there")
	if sb.String() != "hello there\n" {
		t.Errorf("got %q", sb.String())
	}
}

// Partial segments must not reach the writer until the line completes.
func TestWriterLoggerAssemblesSegments(t *testing.T) {
	var sb strings.Builder
	l := WriterLogger(&sb)
	l.Log("two")
	if sb.String() != "" {
		t.Errorf("segment flushed early: %q", sb.String())
	}
	l.LogLine("halves")
	if sb.String() != "twohalves\n" {
		t.Errorf("got %q", sb.String())
	}
}

func TestEngineLogsThroughBufferedLogger(t *testing.T) {
	logger := NewBufferedLogger()
	e := newEngine(t, Options{Logger: logger})

	src := `<q:component name="T"><q:log message="rendered"/></q:component>`
	if _, err := e.RenderSource(context.Background(), "t.qml", src, nil, ""); err != nil {
		t.Fatal(err)
	}

	lines := logger.Lines()
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[info] ") || !strings.HasSuffix(lines[0], "rendered") {
		t.Errorf("got %q", lines[0])
	}
}
