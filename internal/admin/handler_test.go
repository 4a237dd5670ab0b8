package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/admin"
	"qindex/internal/engine"
	"qindex/internal/fixture"
	"qindex/internal/instrument"
	"qindex/internal/metadata"
	"qindex/internal/store"
)

type env struct {
	app      *fiber.App
	searcher *engine.Searcher
	schema   *metadata.Schema
	err      error
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "index.db"), 0)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	schema, err := fixture.Schema()
	require.NoError(t, err)
	mig := store.NewMigrator(s)
	reg, err := mig.Sync(ctx, schema, store.SyncOptions{AppVersion: "1.0.0"})
	require.NoError(t, err)

	e := &env{schema: schema}
	e.searcher = engine.NewSearcher(s, reg, engine.SearcherOptions{})
	source := func() (*metadata.Schema, error) { return e.schema, e.err }

	e.app = fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	admin.RegisterAdminRoutes(e.app,
		admin.NewHandler(s, e.searcher, mig, source, store.SyncOptions{AppVersion: "1.1.0"}),
		instrument.NewQueryLogHandler(s.DB, s.Dialect))
	return e
}

func (e *env) do(t *testing.T, method, url string) (int, string) {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(method, url, nil), -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out), body)
	return out
}

func TestSchemaExport(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, http.MethodGet, "/api/admin/schema")
	require.Equal(t, http.StatusOK, status)
	data := decode(t, body)["data"].(map[string]any)
	assert.Equal(t, "sqlite", data["dialect"])
	assert.Len(t, data["tables"], len(store.SystemTables)+18)

	status, body = e.do(t, http.MethodGet, "/api/admin/schema?format=text&rows=true&limit=1")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "# Index schema (sqlite)"))
	assert.Contains(t, body, "## entity_types")

	status, body = e.do(t, http.MethodGet, "/api/admin/schema?format=xml")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "VALIDATION_FAILED")
}

func TestRegistryEndpoint(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, http.MethodGet, "/api/admin/registry")
	require.Equal(t, http.StatusOK, status)
	data := decode(t, body)["data"].(map[string]any)
	assert.Equal(t, "qname_", data["table_prefix"])
	descriptors := data["descriptors"].([]any)
	require.Len(t, descriptors, 18)
	first := descriptors[0].(map[string]any)
	assert.Equal(t, "qname_0", first["table_name"])
	assert.Equal(t, "property", first["kind"])
	assert.Contains(t, data["enums"], "Gender.FEMALE")
}

func TestSyncPublishesRegistry(t *testing.T) {
	e := setup(t)

	grown, err := metadata.ParseSchema(append(fixture.SchemaYAML(), []byte(`
  - name: Dog
    kind: entity
    extends: [Nameable]
    members:
      - name: breed
        type: string
`)...))
	require.NoError(t, err)
	e.schema = grown

	status, body := e.do(t, http.MethodPost, "/api/admin/sync")
	require.Equal(t, http.StatusOK, status, body)
	data := decode(t, body)["data"].(map[string]any)
	assert.EqualValues(t, 19, data["qnames"])
	assert.EqualValues(t, 1, data["added"])

	d, err := e.searcher.Registry().Describe(metadata.NewQualifiedName("Dog", "breed"))
	require.NoError(t, err)
	assert.Equal(t, "qname_18", d.TableName)

	ids, err := e.searcher.Find(context.Background(), engine.Search{Type: "Dog"})
	require.NoError(t, err)
	assert.Empty(t, ids)

	e.err = errors.New("schema file vanished")
	status, _ = e.do(t, http.MethodPost, "/api/admin/sync")
	assert.Equal(t, http.StatusInternalServerError, status)
	_, err = e.searcher.Registry().Describe(metadata.NewQualifiedName("Dog", "breed"))
	assert.NoError(t, err, "a failed sync keeps the published registry")
}

func TestQueryLogRoute(t *testing.T) {
	e := setup(t)
	status, body := e.do(t, http.MethodGet, "/api/admin/query-log")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode(t, body)["data"])
}
