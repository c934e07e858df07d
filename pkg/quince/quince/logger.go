package quince

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/quincelang/quince/pkg/quince/exec"
)

// Logger is the engine's logging interface. The runtime emits one line per
// <q:log> tag, shaped "[level] requestID message": Log carries partial
// segments, LogLine completes the current line.
type Logger = exec.Logger

// appendValues joins values with single spaces onto b. Successive calls get
// no separator, so segments concatenate into one line.
func appendValues(b *strings.Builder, values []any) {
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(b, v)
	}
}

// WriterLogger returns a logger that assembles segments into lines and
// writes each completed line to w. Concurrent requests may share it.
func WriterLogger(w io.Writer) Logger {
	return &writerLogger{w: w}
}

type writerLogger struct {
	mu      sync.Mutex
	w       io.Writer
	pending strings.Builder
}

func (l *writerLogger) Log(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	appendValues(&l.pending, values)
}

func (l *writerLogger) LogLine(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	appendValues(&l.pending, values)
	fmt.Fprintln(l.w, l.pending.String())
	l.pending.Reset()
}

// BufferedLogger captures completed lines in memory, for tests and for hosts
// that surface a request's log output after the render.
type BufferedLogger struct {
	mu      sync.Mutex
	lines   []string
	pending strings.Builder
}

// NewBufferedLogger creates an empty buffered logger.
func NewBufferedLogger() *BufferedLogger {
	return &BufferedLogger{}
}

func (l *BufferedLogger) Log(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	appendValues(&l.pending, values)
}

func (l *BufferedLogger) LogLine(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	appendValues(&l.pending, values)
	l.lines = append(l.lines, l.pending.String())
	l.pending.Reset()
}

// Lines returns a copy of the completed lines captured so far.
func (l *BufferedLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// String renders the captured output, one line per LogLine call, with any
// unfinished segment at the end.
func (l *BufferedLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, line := range l.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(l.pending.String())
	return b.String()
}

// Reset discards everything captured so far.
func (l *BufferedLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
	l.pending.Reset()
}

// NullLogger returns a logger that discards everything.
func NullLogger() Logger {
	return nullLogger{}
}

type nullLogger struct{}

func (nullLogger) Log(values ...any)     {}
func (nullLogger) LogLine(values ...any) {}
