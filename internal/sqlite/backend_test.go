package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestBackend_AttachCreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	b := attachAt(t, dir)

	_, err := os.Stat(filepath.Join(dir, DBFile))
	require.NoError(t, err)
	assert.Equal(t, dir, b.Config().DataDir)

	for _, table := range []string{"objtypes", "links", "translations", "dbconfig"} {
		ok, err := b.Schema().TableExists(table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
}

func TestBackend_AttachTwice(t *testing.T) {
	b := setupBackend(t)
	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config types.Config
		want   error
	}{
		{name: "no backend", config: types.Config{DataDir: "x"}, want: types.ErrBackendEmpty},
		{name: "unknown backend", config: types.Config{Backend: "postgres", DataDir: "x"}, want: types.ErrBackendUnknown},
		{name: "bad language", config: types.Config{Backend: types.BackendSQLite, DataDir: "x", Language: "??"}, want: types.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackend()
			assert.ErrorIs(t, b.Attach(tt.config), tt.want)
			_, err := b.Store().Count(userKind(), "")
			assert.ErrorIs(t, err, types.ErrDetached)
		})
	}
}

func TestBackend_Detach(t *testing.T) {
	b := setupBackend(t)
	k := userKind()
	id := mustCreate(t, b, k, map[string]any{"name": "Ann"})

	store := b.Store()
	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach())

	_, err := store.Load(k, id)
	assert.ErrorIs(t, err, types.ErrDetached, "components taken before detach stop working")
	_, err = b.Store().Load(k, id)
	assert.ErrorIs(t, err, types.ErrDetached)
	_, _, err = b.Settings().Get("x")
	assert.ErrorIs(t, err, types.ErrDetached)
	_, err = b.Registry().Resolve(k)
	assert.ErrorIs(t, err, types.ErrDetached)
}

func TestBackend_ReattachKeepsData(t *testing.T) {
	dir := t.TempDir()
	b := attachAt(t, dir)
	k := userKind()
	id := mustCreate(t, b, k, map[string]any{"name": "Ann"})
	require.NoError(t, b.Detach())

	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	rec, err := b.Store().Load(k, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec.Text("name"))
}

func TestBackend_Memory(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: types.MemoryDataDir}))
	t.Cleanup(func() { b.Detach() })

	k := userKind()
	id := mustCreate(t, b, k, map[string]any{"name": "Ann"})
	rec, err := b.Store().Load(k, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec.Text("name"))
}

func TestBackend_Cursor(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir(), WindowSize: 8}))
	t.Cleanup(func() { b.Detach() })

	k := itemKind()
	for i := range 100 {
		mustCreate(t, b, k, map[string]any{"title": "item", "qty": i})
	}

	c := b.Cursor(k).OrderBy("qty DESC")
	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	rec, err := c.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.Int("qty"))
	rec, err = c.At(50)
	require.NoError(t, err)
	assert.Equal(t, int64(49), rec.Int("qty"))

	c.Filter("qty < ?", 10)
	n, err = c.Count()
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	require.NoError(t, c.DeleteAt(0))
	n, err = c.Count()
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	rec, err = c.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.Int("qty"))

	total, err := b.Store().Count(k, "")
	require.NoError(t, err)
	assert.Equal(t, 99, total)

	seen := 0
	for rec, err := range c.All() {
		require.NoError(t, err)
		assert.Less(t, rec.Int("qty"), int64(9))
		seen++
	}
	assert.Equal(t, 9, seen)

	_, err = c.At(9)
	assert.ErrorIs(t, err, types.ErrOutOfRange)
}
