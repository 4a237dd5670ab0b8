package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string         { return "datetime('now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool      { return true }
func (d *SQLiteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (d *SQLiteDialect) QuoteIdent(name string) string { return quoteIdent(name) }

// GoquDialect renders REGEXP, which relies on the regexp function registered
// by registerRegexp.
func (d *SQLiteDialect) GoquDialect() string { return "sqlite3" }

func (d *SQLiteDialect) Pagination(offset, limit int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		// SQLite has no OFFSET without LIMIT.
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

func (d *SQLiteDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "int", "integer", "long", "bigint", "boolean":
		return "INTEGER"
	case "double", "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) SystemTablesSQL() []string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days int) string {
	ph := pb.Add(fmt.Sprintf("%d", days))
	return fmt.Sprintf("%s < datetime('now', '-' || %s || ' days')", createdAtCol, ph)
}

func (d *SQLiteDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", condition)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

var sqliteSystemTablesSQL = []string{
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
    entity_pk       INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type_id  INTEGER NOT NULL REFERENCES entity_types(entity_type_id),
    entity_identity TEXT NOT NULL UNIQUE,
    modified        TEXT NOT NULL,
    entity_version  TEXT NOT NULL,
    app_version     TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (entity_type_id)`,
	`CREATE TABLE IF NOT EXISTS all_qnames (
    qname_id  INTEGER NOT NULL,
    entity_pk INTEGER NOT NULL REFERENCES entities(entity_pk) ON DELETE CASCADE,
    PRIMARY KEY (qname_id, entity_pk)
)`,
	`CREATE TABLE IF NOT EXISTS app_version (
    version      TEXT PRIMARY KEY,
    installed_at TEXT NOT NULL DEFAULT (datetime('now'))
)`,
	`CREATE TABLE IF NOT EXISTS query_log (
    id          TEXT PRIMARY KEY,
    result_type TEXT NOT NULL,
    where_text  TEXT NOT NULL DEFAULT '',
    sql_text    TEXT NOT NULL,
    param_count INTEGER NOT NULL DEFAULT 0,
    row_count   INTEGER NOT NULL DEFAULT 0,
    count_only  INTEGER NOT NULL DEFAULT 0,
    duration_ms REAL NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
)`,
	`CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log (created_at DESC)`,
}

var _ Dialect = (*SQLiteDialect)(nil)
