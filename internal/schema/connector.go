// Package schema owns the single relational data source: it opens the handle,
// restricts visibility to an allow-list of tables, captures a bounded number of
// sample rows for prompt context, and executes read-only statements.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var (
	ErrConfig     = errors.New("invalid connector configuration")
	ErrConnection = errors.New("database connection failed")
)

type Config struct {
	DSN             string
	AllowedTables   []string
	SampleRows      int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Connector holds the open handle and the schema context built at connect
// time. It never issues writes.
type Connector struct {
	db            *sql.DB
	schemaContext Context
}

const maxResultRows = 50

func Connect(ctx context.Context, cfg Config) (*Connector, error) {
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	connector, err := NewConnector(ctx, db, cfg.AllowedTables, cfg.SampleRows)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return connector, nil
}

func open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: dsn is required", ErrConfig)
	}
	if len(cfg.AllowedTables) == 0 {
		return nil, fmt.Errorf("%w: table allow-list is empty", ErrConfig)
	}
	if cfg.SampleRows < 0 {
		return nil, fmt.Errorf("%w: sample rows must not be negative", ErrConfig)
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return db, nil
}

// NewConnector builds the schema context over an already-open handle. Split
// from Connect so tests can inject a mocked *sql.DB.
func NewConnector(ctx context.Context, db *sql.DB, allowedTables []string, sampleRows int) (*Connector, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrConfig)
	}
	if len(allowedTables) == 0 {
		return nil, fmt.Errorf("%w: table allow-list is empty", ErrConfig)
	}

	schemaContext := Context{Tables: make([]Table, 0, len(allowedTables))}
	for _, name := range allowedTables {
		columns, err := introspectColumns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		table := Table{Name: name, Columns: columns}
		if sampleRows > 0 {
			rows, err := collectSampleRows(ctx, db, name, sampleRows)
			if err != nil {
				return nil, fmt.Errorf("sample rows for %s: %w", name, err)
			}
			table.SampleRows = rows
		}
		schemaContext.Tables = append(schemaContext.Tables, table)
	}

	return &Connector{db: db, schemaContext: schemaContext}, nil
}

func (c *Connector) Context() Context {
	return c.schemaContext
}

func (c *Connector) RenderText() string {
	return c.schemaContext.Render()
}

func (c *Connector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

func (c *Connector) Close() error {
	return c.db.Close()
}

// QueryText executes a read-only statement and renders the result as a
// pipe-separated text block, capped at maxResultRows.
func (c *Connector) QueryText(ctx context.Context, sqlText string) (string, error) {
	if !IsReadOnlySQL(sqlText) {
		return "", fmt.Errorf("only read-only SELECT/WITH statements are allowed")
	}

	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("read result columns: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))

	count := 0
	truncated := false
	for rows.Next() {
		if count >= maxResultRows {
			truncated = true
			break
		}
		values, err := scanRowText(rows, len(columns))
		if err != nil {
			return "", err
		}
		b.WriteString("\n" + strings.Join(values, " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate result rows: %w", err)
	}

	if count == 0 {
		return b.String() + "\n(no rows)", nil
	}
	if truncated {
		fmt.Fprintf(&b, "\n(result truncated to first %d rows)", maxResultRows)
	}
	return b.String(), nil
}

func IsReadOnlySQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func introspectColumns(ctx context.Context, db *sql.DB, tableName string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
SELECT column_name, column_type
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", tableName, err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %s: %w", tableName, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: allowed table %q does not exist in the connected schema", ErrConfig, tableName)
	}
	return columns, nil
}

func collectSampleRows(ctx context.Context, db *sql.DB, tableName string, limit int) ([][]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(tableName), limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]string
	for rows.Next() {
		values, err := scanRowText(rows, len(columns))
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

func scanRowText(rows *sql.Rows, columnCount int) ([]string, error) {
	raw := make([]sql.RawBytes, columnCount)
	dest := make([]any, columnCount)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan result row: %w", err)
	}
	values := make([]string, columnCount)
	for i, cell := range raw {
		if cell == nil {
			values[i] = "NULL"
			continue
		}
		values[i] = string(cell)
	}
	return values, nil
}

func quoteIdent(value string) string {
	return "`" + strings.ReplaceAll(value, "`", "``") + "`"
}
