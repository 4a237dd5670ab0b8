package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// GoquDialect returns the goqu dialect compiled queries are rendered
	// with ("postgres" or "sqlite3").
	GoquDialect() string

	// Placeholder returns the marker for the 1-based parameter index.
	Placeholder(index int) string

	// QuoteIdent quotes a table or column name when the dialect needs it.
	QuoteIdent(name string) string

	// Pagination returns the LIMIT/OFFSET clause, or "" when both are zero.
	Pagination(offset, limit int) string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// ColumnType maps a scalar kind or storage type to the database DDL type.
	ColumnType(fieldType string) string

	// AutoIncrementPK returns the column definition of a generated BIGINT key.
	AutoIncrementPK() string

	// SystemTablesSQL returns the DDL statements for the index system tables.
	SystemTablesSQL() []string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, q Querier, tableName string) (bool, error)

	// GetColumns returns existing column names and types for a table.
	GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error)

	// IntervalDeleteExpr returns SQL for deleting rows older than N days.
	IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days int) string

	// FilterCountExpr returns SQL for conditional counting.
	// PostgreSQL: "COUNT(*) FILTER (WHERE condition)"
	// SQLite: "SUM(CASE WHEN condition THEN 1 ELSE 0 END)"
	FilterCountExpr(condition string) string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers (SQLite).
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// SystemTables lists the fixed tables every index database carries.
var SystemTables = []string{
	"entity_types",
	"used_classes",
	"enum_lookup",
	"used_qnames",
	"entities",
	"all_qnames",
	"app_version",
	"query_log",
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// quoteIdent double-quotes names that are not plain lower-case words.
func quoteIdent(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
func (p *sqliteParamBuilder) Count() int    { return p.n }
