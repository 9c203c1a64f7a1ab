package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, ":memory:", db.Path)
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestOpenFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "graph.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(context.Background(), "k", []byte("v")))
	db.Close()

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestKV(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.Get(ctx, "graph:nodes")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put(ctx, "graph:nodes", []byte("[1]")))
	require.NoError(t, db.Put(ctx, "graph:nodes", []byte("[1,2]")))
	got, err := db.Get(ctx, "graph:nodes")
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(got), "last write wins")

	require.NoError(t, db.PutMany(ctx, map[string][]byte{
		"graph:edges":   []byte("[]"),
		"graph:signals": []byte("{}"),
	}))
	keys, err := db.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"graph:edges", "graph:nodes", "graph:signals"}, keys)

	require.NoError(t, db.Delete(ctx, "graph:edges", "missing"))
	keys, err = db.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"graph:nodes", "graph:signals"}, keys)
}
