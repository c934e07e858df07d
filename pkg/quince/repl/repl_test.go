package repl

import (
	"testing"
)

func TestSplitAssignment(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantRHS  string
		wantOK   bool
	}{
		{"x = 1", "x", "1", true},
		{"x=1+2", "x", "1+2", true},
		{"session.user = \"Ada\"", "session.user", "\"Ada\"", true},
		{"total_2 = total_2 + 1", "total_2", "total_2 + 1", true},
		{"x == 1", "", "", false},
		{"x <= 1", "", "", false},
		{"x >= 1", "", "", false},
		{"x != 1", "", "", false},
		{"1 = 2", "", "", false},
		{"a.b.c = 1", "", "", false},
		{".x = 1", "", "", false},
		{"x. = 1", "", "", false},
		{"x =", "", "", false},
		{"= 1", "", "", false},
		{"a + b = c", "", "", false},
	}

	for _, tt := range tests {
		name, rhs, ok := splitAssignment(tt.input)
		if ok != tt.wantOK {
			t.Errorf("%q: ok = %v, want %v", tt.input, ok, tt.wantOK)
			continue
		}
		if ok && (name != tt.wantName || rhs != tt.wantRHS) {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.input, name, rhs, tt.wantName, tt.wantRHS)
		}
	}
}

func TestFilterCompletions(t *testing.T) {
	words := []string{"and", "application.", "len", "lower", "not"}

	got := filterCompletions(words, "lo")
	if len(got) != 1 || got[0] != "lower" {
		t.Errorf("got %v", got)
	}

	// Only the last token completes; the rest of the line is kept.
	got = filterCompletions(words, "1 + le")
	if len(got) != 1 || got[0] != "1 + len" {
		t.Errorf("got %v", got)
	}

	if got = filterCompletions(words, "xyz"); got != nil {
		t.Errorf("Expected no completions, got %v", got)
	}
	if got = filterCompletions(words, ""); got != nil {
		t.Errorf("Empty line should not complete, got %v", got)
	}
}
