package sqlite

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestRegistry_ResolveIsStable(t *testing.T) {
	dir := t.TempDir()

	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))

	userID, err := b.Registry().Resolve(userKind())
	require.NoError(t, err)
	itemID, err := b.Registry().Resolve(itemKind())
	require.NoError(t, err)
	assert.NotEqual(t, userID, itemID)

	again, err := b.Registry().Resolve(userKind())
	require.NoError(t, err)
	assert.Equal(t, userID, again)
	require.NoError(t, b.Detach())

	// A new process against the same file sees the same ids.
	b2 := attachAt(t, dir)
	got, err := b2.Registry().Resolve(itemKind())
	require.NoError(t, err)
	assert.Equal(t, itemID, got)
	got, err = b2.Registry().Resolve(userKind())
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	entries, err := b2.Registry().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.KindEntry{ID: userID, ClassName: "user", TableName: "user"}, entries[0])
	assert.Equal(t, types.KindEntry{ID: itemID, ClassName: "Item", TableName: "items"}, entries[1])
}

func TestRegistry_Lookup(t *testing.T) {
	b := setupBackend(t)

	id, err := b.Registry().Resolve(itemKind())
	require.NoError(t, err)

	e, err := b.Registry().Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, "items", e.TableName)

	_, err = b.Registry().Lookup(id + 100)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRegistry_ResolveRejectsInvalidKind(t *testing.T) {
	b := setupBackend(t)
	_, err := b.Registry().Resolve(nil)
	assert.ErrorIs(t, err, types.ErrInvalidKind)
	_, err = b.Registry().Resolve(&types.Kind{})
	assert.ErrorIs(t, err, types.ErrInvalidKind)
}

func TestRegistry_InsertFailureLeavesCacheUnchanged(t *testing.T) {
	c, mock := newMockConn(t)
	r := newRegistry(c, c.log)

	mock.ExpectQuery("SELECT id, classname, tablename FROM objtypes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "classname", "tablename"}).AddRow(1, "Item", "items"))
	mock.ExpectQuery("SELECT id FROM objtypes WHERE tablename").
		WithArgs("user").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO objtypes").
		WithArgs("user", "user").
		WillReturnError(errors.New("attempt to write a readonly database"))

	_, err := r.Resolve(userKind())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))

	entries, err := r.Entries()
	require.NoError(t, err)
	assert.Equal(t, []types.KindEntry{{ID: 1, ClassName: "Item", TableName: "items"}}, entries)

	// The next attempt goes back to the store rather than a cached id.
	mock.ExpectQuery("SELECT id FROM objtypes WHERE tablename").
		WithArgs("user").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO objtypes").
		WithArgs("user", "user").
		WillReturnResult(sqlmock.NewResult(2, 1))

	id, err := r.Resolve(userKind())
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	require.NoError(t, mock.ExpectationsWereMet())
}
