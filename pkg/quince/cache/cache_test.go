package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quincelang/quince/pkg/quince/parser"
)

const componentA = `<q:component name="A"><p>one</p></q:component>`
const componentB = `<q:component name="B"><p>two</p></q:component>`

func newCache() *Cache {
	return New(parser.New())
}

// An unchanged fingerprint must serve the cached tree without reparsing.
func TestHitReturnsSameTree(t *testing.T) {
	c := newCache()

	first, err := c.LoadContent("a.qml", []byte(componentA))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := c.LoadContent("a.qml", []byte(componentA))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if first != second {
		t.Error("hit should return the identical cached tree")
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("Expected 1 miss and 1 hit, got %+v", stats)
	}
}

// Changed content under the same path must force a reparse.
func TestChangedContentReparses(t *testing.T) {
	c := newCache()

	first, err := c.LoadContent("a.qml", []byte(componentA))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := c.LoadContent("a.qml", []byte(componentB))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if first == second {
		t.Error("changed content returned the stale tree")
	}
	if second.Name != "B" {
		t.Errorf("Expected reparsed unit B, got %q", second.Name)
	}
	if c.Stats().Reloads != 1 {
		t.Errorf("Expected 1 reload, got %+v", c.Stats())
	}
}

// The same content under two paths is two independent entries.
func TestEntriesAreKeyedByPath(t *testing.T) {
	c := newCache()

	if _, err := c.LoadContent("a.qml", []byte(componentA)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LoadContent("b.qml", []byte(componentA)); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

// A parse failure must not leave a stale entry behind.
func TestParseFailureInvalidates(t *testing.T) {
	c := newCache()

	if _, err := c.LoadContent("a.qml", []byte(componentA)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LoadContent("a.qml", []byte(`<div>not a component</div>`)); err == nil {
		t.Fatal("Expected parse error")
	}
	if c.Len() != 0 {
		t.Error("failed parse left a cached entry")
	}

	// A later fix parses cleanly.
	unit, err := c.LoadContent("a.qml", []byte(componentB))
	if err != nil {
		t.Fatalf("load after fix: %v", err)
	}
	if unit.Name != "B" {
		t.Errorf("Expected B after fix, got %q", unit.Name)
	}
}

func TestInvalidate(t *testing.T) {
	c := newCache()

	first, _ := c.LoadContent("a.qml", []byte(componentA))
	c.Invalidate("a.qml")
	second, _ := c.LoadContent("a.qml", []byte(componentA))

	if first == second {
		t.Error("invalidated entry was served")
	}
}

// Disabled and enabled caching must be observationally identical.
func TestDisabledMatchesEnabled(t *testing.T) {
	enabled := newCache()
	disabled := newCache()
	disabled.SetDisabled(true)

	a, err := enabled.LoadContent("a.qml", []byte(componentA))
	if err != nil {
		t.Fatal(err)
	}
	b, err := disabled.LoadContent("a.qml", []byte(componentA))
	if err != nil {
		t.Fatal(err)
	}

	if a.String() != b.String() {
		t.Error("disabled cache produced a different tree")
	}
	if disabled.Len() != 0 {
		t.Error("disabled cache stored an entry")
	}
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.qml")
	if err := os.WriteFile(path, []byte(componentA), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newCache()
	unit, err := c.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if unit.Name != "A" {
		t.Errorf("Expected A, got %q", unit.Name)
	}

	// Rewriting the file with new content is picked up on the next load.
	if err := os.WriteFile(path, []byte(componentB), 0o644); err != nil {
		t.Fatal(err)
	}
	unit, err = c.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if unit.Name != "B" {
		t.Errorf("Expected B after rewrite, got %q", unit.Name)
	}
}

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf([]byte("one"))
	b := FingerprintOf([]byte("one"))
	c := FingerprintOf([]byte("two"))

	if a != b {
		t.Error("identical content should fingerprint identically")
	}
	if a == c {
		t.Error("different content should fingerprint differently")
	}
}
