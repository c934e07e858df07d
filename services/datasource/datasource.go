// Package datasource is the query collaborator consumed by the runtime.
// The interpreter sees a single narrow contract: execute query text with
// bound parameters, get back an ordered row set or an error.
package datasource

import (
	"context"
	"fmt"
)

// RowSet is the result of one query: column order plus rows as plain maps.
type RowSet struct {
	Columns []string
	Rows    []map[string]any
}

// DataSource executes query text with positional bound parameters.
type DataSource interface {
	Execute(ctx context.Context, query string, params []any) (*RowSet, error)
}

// Registry maps datasource names from component files to implementations.
type Registry struct {
	sources  map[string]DataSource
	fallback string
}

// NewRegistry creates an empty datasource registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]DataSource)}
}

// Add registers a named datasource. The first added source is the default
// for queries that name none.
func (r *Registry) Add(name string, ds DataSource) {
	if len(r.sources) == 0 {
		r.fallback = name
	}
	r.sources[name] = ds
}

// Get returns the named datasource; "" means the default.
func (r *Registry) Get(name string) (DataSource, error) {
	if name == "" {
		name = r.fallback
	}
	if ds, ok := r.sources[name]; ok {
		return ds, nil
	}
	return nil, fmt.Errorf("unknown datasource %q", name)
}

// Static is a canned-response DataSource for tests: every Execute returns
// the same row set.
type Static struct {
	Result *RowSet
	Err    error

	// Calls records executed query texts, oldest first. Params records the
	// bound parameters of each call, index-aligned with Calls.
	Calls  []string
	Params [][]any
}

// Execute implements DataSource.
func (s *Static) Execute(_ context.Context, query string, params []any) (*RowSet, error) {
	s.Calls = append(s.Calls, query)
	s.Params = append(s.Params, params)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result == nil {
		return &RowSet{}, nil
	}
	return s.Result, nil
}
