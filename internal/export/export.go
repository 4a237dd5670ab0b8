// Package export reflects the physical index schema and its live contents
// for debugging. It only reads and never opens a transaction.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"qindex/internal/metadata"
	"qindex/internal/store"
)

const defaultRowLimit = 100

// Options controls how much of each table Collect reads.
type Options struct {
	IncludeRows bool
	RowLimit    int // rows per table when IncludeRows is set, 0 for the default
}

// Column is one physical column and its database type.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table describes one physical table. QName and Kind are set for
// qualified-name tables only.
type Table struct {
	Name     string           `json:"name"`
	QName    string           `json:"qname,omitempty"`
	Kind     string           `json:"kind,omitempty"`
	Storage  string           `json:"storage,omitempty"`
	Depth    int              `json:"collection_depth,omitempty"`
	Columns  []Column         `json:"columns"`
	RowCount int64            `json:"row_count"`
	Rows     []map[string]any `json:"rows,omitempty"`
	Missing  bool             `json:"missing,omitempty"`
}

// Report is the result of Collect.
type Report struct {
	Dialect     string         `json:"dialect"`
	GeneratedAt time.Time      `json:"generated_at"`
	AppVersions []string       `json:"app_versions"`
	EntityTypes map[string]int `json:"entity_types"`
	Tables      []Table        `json:"tables"`
}

// Collect reads every system table followed by every qualified-name table of
// reg, in allocation order.
func Collect(ctx context.Context, s *store.Store, reg *metadata.Registry, opts Options) (*Report, error) {
	if opts.RowLimit <= 0 {
		opts.RowLimit = defaultRowLimit
	}

	report := &Report{
		Dialect:     s.Dialect.Name(),
		GeneratedAt: time.Now().UTC(),
		EntityTypes: make(map[string]int),
	}
	for _, e := range reg.Types().Entities() {
		report.EntityTypes[e.Name] = e.ID
	}

	versions, err := store.AppVersions(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	report.AppVersions = versions

	for _, name := range store.SystemTables {
		t, err := collectTable(ctx, s, name, opts)
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, *t)
	}
	for _, d := range reg.Descriptors() {
		t, err := collectTable(ctx, s, d.TableName, opts)
		if err != nil {
			return nil, err
		}
		t.QName = d.QName.String()
		t.Kind = d.Kind.String()
		t.Storage = d.StorageType()
		t.Depth = d.CollectionDepth
		report.Tables = append(report.Tables, *t)
	}
	return report, nil
}

func collectTable(ctx context.Context, s *store.Store, name string, opts Options) (*Table, error) {
	t := &Table{Name: name}
	exists, err := s.Dialect.TableExists(ctx, s.DB, name)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	if !exists {
		t.Missing = true
		return t, nil
	}

	cols, err := s.Dialect.GetColumns(ctx, s.DB, name)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	names := make([]string, 0, len(cols))
	for c := range cols {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		t.Columns = append(t.Columns, Column{Name: c, Type: cols[c]})
	}

	quoted := s.Dialect.QuoteIdent(name)
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&t.RowCount); err != nil {
		return nil, fmt.Errorf("export %s: count rows: %w", name, err)
	}

	if opts.IncludeRows && t.RowCount > 0 {
		order := make([]string, len(names))
		for i, c := range names {
			order[i] = s.Dialect.QuoteIdent(c)
		}
		q := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d", quoted, strings.Join(order, ", "), opts.RowLimit)
		rows, err := store.QueryRows(ctx, s.DB, q)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		t.Rows = rows
	}
	return t, nil
}

// Table returns the table with the given physical name.
func (r *Report) Table(name string) (*Table, bool) {
	for i := range r.Tables {
		if r.Tables[i].Name == name {
			return &r.Tables[i], true
		}
	}
	return nil, false
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a summary table followed by one section per table that
// carries rows, all as markdown.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "# Index schema (%s)\n\n", r.Dialect)
	fmt.Fprintf(w, "App versions: %s\n\n", strings.Join(r.AppVersions, ", "))

	summary := newMarkdownTable(w, 6)
	summary.Header([]string{"Table", "QName", "Kind", "Storage", "Columns", "Rows"})
	for _, t := range r.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
		rows := fmt.Sprintf("%d", t.RowCount)
		if t.Missing {
			rows = "missing"
		}
		kind := t.Kind
		if kind != "" && t.Depth > 0 {
			kind = fmt.Sprintf("%s depth %d", kind, t.Depth)
		}
		if err := summary.Append([]string{t.Name, t.QName, kind, t.Storage, strings.Join(cols, ", "), rows}); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	for _, t := range r.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		title := t.Name
		if t.QName != "" {
			title += " (" + t.QName + ")"
		}
		fmt.Fprintf(w, "\n## %s\n\n", title)

		table := newMarkdownTable(w, len(t.Columns))
		headers := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			headers[i] = c.Name
		}
		table.Header(headers)
		for _, row := range t.Rows {
			cells := make([]string, len(headers))
			for i, h := range headers {
				cells[i] = formatCell(row[h])
			}
			if err := table.Append(cells); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return nil
}

func newMarkdownTable(w io.Writer, columns int) *tablewriter.Table {
	alignment := make([]tw.Align, columns)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
