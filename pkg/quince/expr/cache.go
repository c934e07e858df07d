package expr

import (
	"container/list"
	"strings"
	"sync"
)

// DefaultCacheSize bounds the compiled-expression cache. Templated
// per-iteration names (story_1, story_2, ...) can otherwise grow the key
// space without limit.
const DefaultCacheSize = 4096

// Compiled is the reusable compiled form of one expression text. It carries
// no per-request state: the same Compiled is evaluated against a different
// resolver on every request, so caching it never caches a result.
type Compiled struct {
	Text string // normalized source text
	prog Expr
}

// Evaluate runs the compiled expression against a resolver.
func (c *Compiled) Evaluate(r Resolver) (Object, error) {
	return Eval(c.prog, r)
}

// Compile parses normalized expression text into its compiled form. It is a
// pure function of the normalized text: equal texts always produce
// behaviorally identical compiled forms, which is what makes the cache's
// last-writer-wins insert race harmless.
func Compile(text string) (*Compiled, error) {
	normalized := Normalize(text)
	prog, err := ParseExpr(normalized)
	if err != nil {
		return nil, err
	}
	return &Compiled{Text: normalized, prog: prog}, nil
}

// Normalize trims whitespace and strips one surrounding {} pair so that
// "{ x + 1 }", "{x + 1}" and "x + 1" share one cache key.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		inner := text[1 : len(text)-1]
		if MatchingBrace(text, 0) == len(text)-1 {
			text = strings.TrimSpace(inner)
		}
	}
	return text
}

// Cache is a bounded, recency-evicting cache of compiled expressions keyed
// by normalized text. Concurrent use is safe; a miss race compiles twice and
// keeps the last insert, which is fine because compiled forms for identical
// text are interchangeable.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key      string
	compiled *Compiled
}

// NewCache creates a cache bounded to maxSize entries. maxSize <= 0 uses
// DefaultCacheSize.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Compile returns the compiled form for text, reusing a cached form when the
// normalized text has been compiled before. Repeated calls with equal text
// return the identical *Compiled reference until it is evicted.
func (c *Cache) Compile(text string) (*Compiled, error) {
	key := Normalize(text)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		compiled := elem.Value.(*cacheEntry).compiled
		c.mu.Unlock()
		return compiled, nil
	}
	c.misses++
	c.mu.Unlock()

	// Compile outside the lock; parse errors are never cached.
	compiled, err := Compile(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		// Lost the insert race; the other compiled form is interchangeable.
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).compiled, nil
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, compiled: compiled})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return compiled, nil
}

// Evaluate compiles (or reuses) text and evaluates it against a resolver.
func (c *Cache) Evaluate(text string, r Resolver) (Object, error) {
	compiled, err := c.Compile(text)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(r)
}

// Len returns the number of cached compiled forms.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts, for tests and diagnostics.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
