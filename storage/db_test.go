package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(dir, "bolt.db"), nil)
	require.NoError(t, err)
	dbs := map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	})
	return dbs
}

func TestDatabaseGetPut(t *testing.T) {
	for name, db := range backends(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			value, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), value)

			ok, err := db.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestBatchAppliesAllWrites(t *testing.T) {
	for name, db := range backends(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			batch := db.NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			require.Equal(t, 2, batch.Len())

			ok, err := db.Has([]byte("a"))
			require.NoError(t, err)
			require.False(t, ok, "batch writes must not be visible before Write")

			require.NoError(t, batch.Write())
			for key, want := range map[string]string{"a": "1", "b": "2"} {
				got, err := db.Get([]byte(key))
				require.NoError(t, err)
				require.Equal(t, want, string(got))
			}
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", t.TempDir())
	require.Error(t, err)
}
