package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string         { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool      { return false }
func (d *PostgresDialect) AutoIncrementPK() string { return "BIGSERIAL PRIMARY KEY" }

func (d *PostgresDialect) QuoteIdent(name string) string { return quoteIdent(name) }

func (d *PostgresDialect) GoquDialect() string { return "postgres" }

func (d *PostgresDialect) Pagination(offset, limit int) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}

func (d *PostgresDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "string", "text":
		return "TEXT"
	case "int", "integer":
		return "INTEGER"
	case "long", "bigint":
		return "BIGINT"
	case "double", "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "datetime", "timestamp":
		return "TIMESTAMPTZ"
	case "uuid":
		return "UUID"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) SystemTablesSQL() []string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days int) string {
	ph := pb.Add(fmt.Sprintf("%d", days))
	return fmt.Sprintf("%s < now() - (%s || ' days')::interval", createdAtCol, ph)
}

func (d *PostgresDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", condition)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
	}
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

var pgSystemTablesSQL = []string{
	`CREATE TABLE IF NOT EXISTS entity_types (
    entity_type_id INTEGER PRIMARY KEY,
    type_name      TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS used_classes (
    class_id   INTEGER PRIMARY KEY,
    class_name TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS enum_lookup (
    enum_id    INTEGER PRIMARY KEY,
    enum_type  TEXT NOT NULL,
    enum_value TEXT NOT NULL,
    UNIQUE (enum_type, enum_value)
)`,
	`CREATE TABLE IF NOT EXISTS used_qnames (
    qname      TEXT PRIMARY KEY,
    table_name TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS entities (
    entity_pk       BIGSERIAL PRIMARY KEY,
    entity_type_id  INTEGER NOT NULL REFERENCES entity_types(entity_type_id),
    entity_identity TEXT NOT NULL UNIQUE,
    modified        TIMESTAMPTZ NOT NULL,
    entity_version  TEXT NOT NULL,
    app_version     TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (entity_type_id)`,
	`CREATE TABLE IF NOT EXISTS all_qnames (
    qname_id  INTEGER NOT NULL,
    entity_pk BIGINT NOT NULL REFERENCES entities(entity_pk) ON DELETE CASCADE,
    PRIMARY KEY (qname_id, entity_pk)
)`,
	`CREATE TABLE IF NOT EXISTS app_version (
    version      TEXT PRIMARY KEY,
    installed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS query_log (
    id          UUID PRIMARY KEY,
    result_type TEXT NOT NULL,
    where_text  TEXT NOT NULL DEFAULT '',
    sql_text    TEXT NOT NULL,
    param_count INTEGER NOT NULL DEFAULT 0,
    row_count   INTEGER NOT NULL DEFAULT 0,
    count_only  BOOLEAN NOT NULL DEFAULT false,
    duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log (created_at DESC)`,
}

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
