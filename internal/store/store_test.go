package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
)

func backends(t *testing.T) map[string]DocumentStore {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), ":memory:", "books")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]DocumentStore{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestDocumentStore(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Store(ctx, "1", schema.Document{"title": "Dune", "year": 1965.0})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Store(ctx, "1", schema.Document{"title": "other"})
			require.NoError(t, err)
			assert.False(t, ok, "duplicate IDs are refused")

			doc, found, err := s.Get(ctx, "1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "Dune", doc["title"])
			assert.Equal(t, 1965.0, doc["year"])

			_, found, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)

			_, err = s.Store(ctx, "2", schema.Document{"title": "Emma"})
			require.NoError(t, err)
			docs, err := s.GetMultiple(ctx, []string{"2", "missing", "1"})
			require.NoError(t, err)
			require.Len(t, docs, 3)
			assert.Equal(t, "Emma", docs[0]["title"])
			assert.Nil(t, docs[1])

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			removed, err := s.Remove(ctx, "1")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Remove(ctx, "1")
			require.NoError(t, err)
			assert.False(t, removed)
		})
	}
}

func TestSQLCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.db"), "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQL(ctx, a.db, SQLite, "b")
	require.NoError(t, err)

	_, err = a.Store(ctx, "1", schema.Document{"x": "a"})
	require.NoError(t, err)
	ok, err := b.Store(ctx, "1", schema.Document{"x": "b"})
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresPlaceholders(t *testing.T) {
	s := &SQL{dialect: Postgres}
	assert.Equal(t, "SELECT body FROM documents WHERE collection = $1 AND id = $2",
		s.q("SELECT body FROM documents WHERE collection = ? AND id = ?"))
	s.dialect = SQLite
	assert.Equal(t, "a = ?", s.q("a = ?"))
}

func TestStoreKeepsPrivateCopies(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc := schema.Document{"title": "Dune", "tags": []any{"spice"}}
			_, err := s.Store(ctx, "1", doc)
			require.NoError(t, err)
			doc["title"] = "changed"
			doc["tags"].([]any)[0] = "changed"

			got, _, err := s.Get(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, "Dune", got["title"])
			assert.Equal(t, []any{"spice"}, got["tags"])
			got["title"] = "edited"
			got["tags"].([]any)[0] = "edited"

			many, err := s.GetMultiple(ctx, []string{"1"})
			require.NoError(t, err)
			many[0]["title"] = "edited again"

			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Dune", all["1"]["title"])
			assert.Equal(t, []any{"spice"}, all["1"]["tags"])
		})
	}
}
