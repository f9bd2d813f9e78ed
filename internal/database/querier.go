package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/uptrace/bun"
)

// RowSet is a fully materialized query result.
type RowSet struct {
	Columns []string
	Types   []string // database type names; pgdriver never reports them, so usually ""
	Rows    [][]any
}

// ColumnIndex returns the position of name, or -1.
func (r *RowSet) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Querier runs SQL with $n placeholders. Arguments are passed apart from the
// statement template and escaped by the driver; callers never splice values
// into the text.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*RowSet, error)
}

// SQLQuerier executes on the *sql.DB under a Bun handle. Bun's formatter only
// understands ? placeholders, so $n statements go straight to pgdriver, which
// interpolates the escaped arguments client side and sends a simple query.
type SQLQuerier struct {
	db *sql.DB
}

func NewQuerier(db *bun.DB) *SQLQuerier {
	return &SQLQuerier{db: db.DB}
}

func (q *SQLQuerier) Query(ctx context.Context, query string, args ...any) (*RowSet, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	rs := &RowSet{Columns: columns, Types: make([]string, len(columns))}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			rs.Types[i] = ct.DatabaseTypeName()
		}
	}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return rs, nil
}

// QualifiedTable returns "schema"."table" quoted for PostgreSQL.
func QualifiedTable(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// QuoteIdent quotes a single PostgreSQL identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// TextValue converts the raw bytes pgdriver returns for types it does not
// decode (numeric, uuid, jsonb, arrays...) into text. Values of bytea columns
// and bytes that are not valid UTF-8 stay as they are. dbType may be "" when
// the column type is unknown.
func TextValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok || strings.EqualFold(dbType, "bytea") || !utf8.Valid(b) {
		return v
	}
	return string(b)
}
