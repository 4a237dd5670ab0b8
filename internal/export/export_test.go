package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/export"
	"qindex/internal/fixture"
	"qindex/internal/indexing"
	"qindex/internal/metadata"
	"qindex/internal/store"
)

func seed(t *testing.T) (*store.Store, *metadata.Registry, int) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "index.db"), 0)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	schema, err := fixture.Schema()
	require.NoError(t, err)
	reg, err := store.NewMigrator(s).Sync(ctx, schema, store.SyncOptions{AppVersion: "3.1.0"})
	require.NoError(t, err)

	states, err := fixture.Entities()
	require.NoError(t, err)
	_, err = indexing.NewWriter(s, reg, "3.1.0").Index(ctx, states...)
	require.NoError(t, err)
	return s, reg, len(states)
}

func TestCollect(t *testing.T) {
	s, reg, entities := seed(t)

	report, err := export.Collect(context.Background(), s, reg, export.Options{})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", report.Dialect)
	assert.Equal(t, []string{"3.1.0"}, report.AppVersions)
	assert.Equal(t, 5, report.EntityTypes["Cat"])
	require.Len(t, report.Tables, len(store.SystemTables)+len(reg.Descriptors()))

	ents, ok := report.Table("entities")
	require.True(t, ok)
	assert.EqualValues(t, entities, ents.RowCount)
	assert.Empty(t, ents.QName)
	assert.Nil(t, ents.Rows)

	tags, ok := report.Table("qname_7")
	require.True(t, ok)
	assert.Equal(t, "Person:tags", tags.QName)
	assert.Equal(t, "property", tags.Kind)
	assert.Equal(t, "string", tags.Storage)
	assert.Equal(t, 1, tags.Depth)
	var cols []string
	for _, c := range tags.Columns {
		cols = append(cols, c.Name)
	}
	assert.Equal(t, []string{"collection_path", "entity_pk", "parent_qname", "qname_id", "value"}, cols)
	assert.Positive(t, tags.RowCount)

	interests, ok := report.Table("qname_14")
	require.True(t, ok)
	assert.Equal(t, "many_association", interests.Kind)
}

func TestCollectRows(t *testing.T) {
	s, reg, _ := seed(t)

	report, err := export.Collect(context.Background(), s, reg, export.Options{IncludeRows: true, RowLimit: 2})
	require.NoError(t, err)

	all, ok := report.Table("all_qnames")
	require.True(t, ok)
	assert.Greater(t, all.RowCount, int64(2))
	assert.Len(t, all.Rows, 2)

	types, ok := report.Table("entity_types")
	require.True(t, ok)
	require.Len(t, types.Rows, 2)
	assert.Contains(t, types.Rows[0], "type_name")
}

func TestCollectMissingTable(t *testing.T) {
	ctx := context.Background()
	s, reg, _ := seed(t)
	_, err := s.DB.ExecContext(ctx, "DROP TABLE qname_17")
	require.NoError(t, err)

	report, err := export.Collect(ctx, s, reg, export.Options{})
	require.NoError(t, err)
	desc, ok := report.Table("qname_17")
	require.True(t, ok)
	assert.True(t, desc.Missing)
	assert.Empty(t, desc.Columns)
}

func TestWriteText(t *testing.T) {
	s, reg, _ := seed(t)
	report, err := export.Collect(context.Background(), s, reg, export.Options{IncludeRows: true, RowLimit: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, "# Index schema (sqlite)")
	assert.Contains(t, out, "App versions: 3.1.0")
	assert.Contains(t, out, "Person:tags")
	assert.Contains(t, out, "property depth 2")
	assert.Contains(t, out, "## qname_7 (Person:tags)")
	assert.Contains(t, out, "## entities")
	assert.Contains(t, out, "NULL")
}

func TestWriteJSON(t *testing.T) {
	s, reg, _ := seed(t)
	report, err := export.Collect(context.Background(), s, reg, export.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded struct {
		Dialect string `json:"dialect"`
		Tables  []struct {
			Name     string `json:"name"`
			QName    string `json:"qname"`
			RowCount int64  `json:"row_count"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "sqlite", decoded.Dialect)
	require.Len(t, decoded.Tables, len(report.Tables))
	assert.Equal(t, "entity_types", decoded.Tables[0].Name)
	assert.Equal(t, "Nameable:name", decoded.Tables[len(store.SystemTables)].QName)
}
