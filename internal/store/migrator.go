package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"qindex/internal/metadata"
)

// SyncOptions controls a schema synchronization.
type SyncOptions struct {
	Prefix     string // qualified-name table prefix, defaults to metadata.DefaultTablePrefix
	AppVersion string // recorded in app_version when not empty
}

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Sync brings the database in line with the schema and returns the registry
// describing it. System tables are created first, then the persisted snapshot is
// read and the registry built against it, so names and ids survive restarts.
// New metadata rows and qualified-name tables are written in one transaction;
// the registry is returned only after that transaction commits.
func (m *Migrator) Sync(ctx context.Context, schema *metadata.Schema, opts SyncOptions) (*metadata.Registry, error) {
	if err := m.EnsureSystemTables(ctx); err != nil {
		return nil, err
	}

	prior, err := m.LoadSnapshot(ctx, m.store.DB)
	if err != nil {
		return nil, err
	}

	reg, err := metadata.Build(schema, prior, metadata.BuildOptions{TablePrefix: opts.Prefix})
	if err != nil {
		return nil, err
	}

	created := 0
	err = m.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := m.persistSnapshot(ctx, tx, prior, reg.Snapshot()); err != nil {
			return err
		}
		for _, d := range reg.Descriptors() {
			isNew, err := m.migrateTable(ctx, tx, d)
			if err != nil {
				return err
			}
			if isNew {
				created++
			}
		}
		return m.recordAppVersion(ctx, tx, opts.AppVersion)
	})
	if err != nil {
		return nil, fmt.Errorf("sync index schema: %w", err)
	}

	log.Printf("Synced index schema: %d entity types, %d qualified names (%d new tables)",
		len(reg.Types().Entities()), len(reg.Descriptors()), created)
	return reg, nil
}

// EnsureSystemTables creates the fixed index tables if they do not exist.
func (m *Migrator) EnsureSystemTables(ctx context.Context) error {
	for _, stmt := range m.store.Dialect.SystemTablesSQL() {
		if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create system tables: %w", err)
		}
	}
	return nil
}

// LoadSnapshot reads every persisted id and table name.
func (m *Migrator) LoadSnapshot(ctx context.Context, q Querier) (metadata.Snapshot, error) {
	snap := metadata.Snapshot{
		TypeIDs:    make(map[string]int),
		ClassIDs:   make(map[string]int),
		EnumIDs:    make(map[metadata.EnumConstant]int),
		TableNames: make(map[metadata.QualifiedName]string),
	}

	err := scanRows(ctx, q, "SELECT entity_type_id, type_name FROM entity_types", func(rows *sql.Rows) error {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		snap.TypeIDs[name] = id
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("load entity types: %w", err)
	}

	err = scanRows(ctx, q, "SELECT class_id, class_name FROM used_classes", func(rows *sql.Rows) error {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		snap.ClassIDs[name] = id
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("load used classes: %w", err)
	}

	err = scanRows(ctx, q, "SELECT enum_id, enum_type, enum_value FROM enum_lookup", func(rows *sql.Rows) error {
		var id int
		var c metadata.EnumConstant
		if err := rows.Scan(&id, &c.Type, &c.Value); err != nil {
			return err
		}
		snap.EnumIDs[c] = id
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("load enum lookup: %w", err)
	}

	err = scanRows(ctx, q, "SELECT qname, table_name FROM used_qnames", func(rows *sql.Rows) error {
		var raw, table string
		if err := rows.Scan(&raw, &table); err != nil {
			return err
		}
		qn, err := metadata.ParseQualifiedName(raw)
		if err != nil {
			return err
		}
		snap.TableNames[qn] = table
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("load used qnames: %w", err)
	}
	return snap, nil
}

// scanRows runs query and calls scan for every row. The rows are closed before
// it returns, which matters on single-connection SQLite pools.
func scanRows(ctx context.Context, q Querier, query string, scan func(rows *sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// persistSnapshot inserts the entries of next that prior does not have.
func (m *Migrator) persistSnapshot(ctx context.Context, tx *sql.Tx, prior, next metadata.Snapshot) error {
	d := m.store.Dialect

	for _, name := range sortedKeys(next.TypeIDs) {
		if _, ok := prior.TypeIDs[name]; ok {
			continue
		}
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("INSERT INTO entity_types (entity_type_id, type_name) VALUES (%s, %s)",
			pb.Add(next.TypeIDs[name]), pb.Add(name))
		if _, err := Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("persist entity type %s: %w", name, MapError(d, err))
		}
	}

	for _, name := range sortedKeys(next.ClassIDs) {
		if _, ok := prior.ClassIDs[name]; ok {
			continue
		}
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("INSERT INTO used_classes (class_id, class_name) VALUES (%s, %s)",
			pb.Add(next.ClassIDs[name]), pb.Add(name))
		if _, err := Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("persist value class %s: %w", name, MapError(d, err))
		}
	}

	enums := make([]metadata.EnumConstant, 0, len(next.EnumIDs))
	for c := range next.EnumIDs {
		if _, ok := prior.EnumIDs[c]; !ok {
			enums = append(enums, c)
		}
	}
	sort.Slice(enums, func(i, j int) bool { return next.EnumIDs[enums[i]] < next.EnumIDs[enums[j]] })
	for _, c := range enums {
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("INSERT INTO enum_lookup (enum_id, enum_type, enum_value) VALUES (%s, %s, %s)",
			pb.Add(next.EnumIDs[c]), pb.Add(c.Type), pb.Add(c.Value))
		if _, err := Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("persist enum constant %s: %w", c, MapError(d, err))
		}
	}

	qnames := make([]metadata.QualifiedName, 0, len(next.TableNames))
	for qn := range next.TableNames {
		if _, ok := prior.TableNames[qn]; !ok {
			qnames = append(qnames, qn)
		}
	}
	sort.Slice(qnames, func(i, j int) bool { return qnames[i].String() < qnames[j].String() })
	for _, qn := range qnames {
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("INSERT INTO used_qnames (qname, table_name) VALUES (%s, %s)",
			pb.Add(qn.String()), pb.Add(next.TableNames[qn]))
		if _, err := Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("persist qualified name %s: %w", qn, MapError(d, err))
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// migrateTable creates the descriptor's table or adds the columns it lacks.
// It reports whether the table was created.
func (m *Migrator) migrateTable(ctx context.Context, tx *sql.Tx, desc *metadata.Descriptor) (bool, error) {
	d := m.store.Dialect
	exists, err := d.TableExists(ctx, tx, desc.TableName)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return true, m.createTable(ctx, tx, desc)
	}
	return false, m.alterTable(ctx, tx, desc)
}

func (m *Migrator) createTable(ctx context.Context, tx *sql.Tx, desc *metadata.Descriptor) error {
	var cols []string
	for _, name := range desc.Columns() {
		cols = append(cols, m.buildColumnDef(desc, name))
	}
	cols = append(cols,
		"PRIMARY KEY (qname_id, entity_pk)",
		"FOREIGN KEY (qname_id, entity_pk) REFERENCES all_qnames (qname_id, entity_pk) ON DELETE CASCADE",
	)

	table := quoteIdent(desc.TableName)
	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", desc.TableName, err)
	}

	if err := m.createIndexes(ctx, tx, desc); err != nil {
		return fmt.Errorf("create indexes for %s: %w", desc.TableName, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, tx *sql.Tx, desc *metadata.Descriptor) error {
	existing, err := m.store.Dialect.GetColumns(ctx, tx, desc.TableName)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", desc.TableName, err)
	}

	for _, name := range desc.Columns() {
		if _, ok := existing[name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(desc.TableName), m.buildColumnDef(desc, name))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", desc.TableName, name, err)
		}
	}
	return m.createIndexes(ctx, tx, desc)
}

func (m *Migrator) buildColumnDef(desc *metadata.Descriptor, name string) string {
	d := m.store.Dialect
	switch name {
	case metadata.ColQNameID:
		return name + " " + d.ColumnType("integer") + " NOT NULL"
	case metadata.ColEntityPK:
		return name + " " + d.ColumnType("bigint") + " NOT NULL"
	case metadata.ColParentQName, metadata.ColAssoIndex:
		return name + " " + d.ColumnType("integer")
	case metadata.ColCollectionPath:
		return name + " " + d.ColumnType("text")
	default:
		return name + " " + d.ColumnType(desc.StorageType())
	}
}

func (m *Migrator) createIndexes(ctx context.Context, tx *sql.Tx, desc *metadata.Descriptor) error {
	for _, col := range []string{metadata.ColValue, metadata.ColEntityPK} {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent("idx_"+desc.TableName+"_"+col), quoteIdent(desc.TableName), col)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", desc.TableName, col, err)
		}
	}
	return nil
}

func (m *Migrator) recordAppVersion(ctx context.Context, tx *sql.Tx, version string) error {
	if version == "" {
		return nil
	}
	d := m.store.Dialect
	pb := d.NewParamBuilder()
	ph := pb.Add(version)
	_, err := QueryRow(ctx, tx, "SELECT version FROM app_version WHERE version = "+ph, pb.Params()...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read app version: %w", err)
	}

	pb = d.NewParamBuilder()
	stmt := fmt.Sprintf("INSERT INTO app_version (version, installed_at) VALUES (%s, %s)", pb.Add(version), d.NowExpr())
	if _, err := Exec(ctx, tx, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("record app version: %w", err)
	}
	return nil
}

// AppVersions returns every recorded application version, oldest first.
func AppVersions(ctx context.Context, q Querier) ([]string, error) {
	return QueryStrings(ctx, q, "SELECT version FROM app_version ORDER BY installed_at, version")
}
