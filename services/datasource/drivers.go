package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Connection cache: one *sql.DB per driver+DSN, shared across requests.
var (
	connectionsMu sync.RWMutex
	connections   = make(map[string]*sql.DB)
)

// SQLSource is a DataSource over database/sql.
type SQLSource struct {
	db *sql.DB
}

// Open returns a SQLSource for a driver and DSN, reusing a pooled connection
// when one exists for the same pair.
func Open(driver, dsn string) (*SQLSource, error) {
	switch driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	key := driver + "\x00" + dsn

	connectionsMu.RLock()
	db, ok := connections[key]
	connectionsMu.RUnlock()
	if ok {
		return &SQLSource{db: db}, nil
	}

	connectionsMu.Lock()
	defer connectionsMu.Unlock()
	if db, ok := connections[key]; ok {
		return &SQLSource{db: db}, nil
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s datasource: %w", driver, err)
	}
	connections[key] = db
	return &SQLSource{db: db}, nil
}

// Wrap adapts an existing *sql.DB managed by the host.
func Wrap(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Execute implements DataSource. Rows come back as column-name maps in
// result order; SELECT-less statements return an empty row set.
func (s *SQLSource) Execute(ctx context.Context, query string, params []any) (*RowSet, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &RowSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return result, nil
}

// CloseAll closes every pooled connection, for host shutdown.
func CloseAll() error {
	connectionsMu.Lock()
	defer connectionsMu.Unlock()

	var firstErr error
	for key, db := range connections {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(connections, key)
	}
	return firstErr
}
