//go:build integration

package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/config"
	"qindex/internal/engine"
	"qindex/internal/fixture"
	"qindex/internal/store"
)

// postgresSearcher connects to the disposable test database and rebuilds the
// index from scratch.
func postgresSearcher(t *testing.T) *engine.Searcher {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		Host:     "localhost",
		Port:     5433,
		User:     "qindex",
		Password: "qindex",
		Name:     "qindex_test",
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	t.Cleanup(s.Close)

	_, err = s.DB.ExecContext(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public")
	require.NoError(t, err)

	schema, err := fixture.Schema()
	require.NoError(t, err)
	reg, err := store.NewMigrator(s).Sync(ctx, schema, store.SyncOptions{AppVersion: "itest"})
	require.NoError(t, err)

	sr := engine.NewSearcher(s, reg, engine.SearcherOptions{AppVersion: "itest"})
	states, err := fixture.Entities()
	require.NoError(t, err)
	_, err = sr.Index(ctx, states...)
	require.NoError(t, err)
	return sr
}

// Both dialects must select the same identities in the same order.
func TestPostgresMatchesSQLite(t *testing.T) {
	ctx := context.Background()
	pg := postgresSearcher(t)
	lite := testSearcher(t, nil)

	searches := []engine.Search{
		{Type: "Nameable", OrderBy: "name"},
		{Type: "Person", Where: "yearOfBirth >= 1973", OrderBy: "name desc"},
		{Type: "Person", Where: `placeOfBirth.name == "Kuala Lumpur"`, OrderBy: "name"},
		{Type: "Person", Where: `"cooking" in tags or name matches "^Jack"`, OrderBy: "yearOfBirth, name"},
		{Type: "Person", Where: `not (name == "Jack Doe" and yearOfBirth > 1970)`, OrderBy: "name"},
		{Type: "Person", Where: `gender == "FEMALE"`, OrderBy: "name"},
		{Type: "Person", Where: "email == nil", OrderBy: "name"},
		{Type: "Nameable", OrderBy: "name", First: 2, Max: 3},
		{Type: "Nameable", OrderBy: "name", First: 4},
	}
	for _, search := range searches {
		t.Run(search.Type+" "+search.Where, func(t *testing.T) {
			want, err := lite.Find(ctx, search)
			require.NoError(t, err)
			got, err := pg.Find(ctx, search)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			wantN, err := lite.Count(ctx, search)
			require.NoError(t, err)
			gotN, err := pg.Count(ctx, search)
			require.NoError(t, err)
			assert.Equal(t, wantN, gotN)
		})
	}
}

func TestPostgresReindexReplacesRows(t *testing.T) {
	ctx := context.Background()
	pg := postgresSearcher(t)

	ids, err := pg.Find(ctx, engine.Search{Type: "Cat"})
	require.NoError(t, err)
	require.Equal(t, []string{"felix"}, ids)

	n, err := pg.Remove(ctx, "felix")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := pg.Count(ctx, engine.Search{Type: "Nameable"})
	require.NoError(t, err)
	assert.EqualValues(t, 9, count)
}
