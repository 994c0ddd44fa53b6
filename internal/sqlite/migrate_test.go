package sqlite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func noteKind(fields ...types.Field) *types.Kind {
	return &types.Kind{Name: "note", Fields: fields}
}

func TestMigrateTable(t *testing.T) {
	b := setupBackend(t)
	v1 := noteKind(
		types.Field{Name: "title", Type: types.Text},
		types.Field{Name: "body", Type: types.Text},
		types.Field{Name: "stars", Type: types.Integer},
	)
	first := mustCreate(t, b, v1, map[string]any{"title": "a", "body": "x", "stars": 4})
	second := mustCreate(t, b, v1, map[string]any{"title": "b", "body": "y", "stars": 5})
	third := mustCreate(t, b, v1, map[string]any{"title": "c"})
	require.NoError(t, b.Store().Delete(v1, third))

	v2 := noteKind(
		types.Field{Name: "title", Type: types.Text},
		types.Field{Name: "stars", Type: types.Integer},
		types.Field{Name: "author", Type: types.Text, Constraints: types.NotNull},
		types.Field{Name: "weight", Type: types.Float, Constraints: types.NotNull},
		types.Field{Name: "seen", Type: types.DateTime},
	)
	require.NoError(t, b.Schema().MigrateTable(v2))

	cols, err := b.Schema().Columns("note")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "stars", "author", "weight", "seen"}, cols)

	rec, err := b.Store().Load(v2, first)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Text("title"))
	assert.Equal(t, int64(4), rec.Int("stars"))
	assert.Equal(t, "", rec.Fields["author"], "NOT NULL text gets the empty string")
	assert.Equal(t, float64(0), rec.Fields["weight"])
	assert.True(t, types.Epoch.Equal(rec.Time("seen")))
	_, hasBody := rec.Get("body")
	assert.False(t, hasBody)

	rec, err = b.Store().Load(v2, second)
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Text("title"))

	t.Run("deleted ids stay retired", func(t *testing.T) {
		id := mustCreate(t, b, v2, map[string]any{"title": "d"})
		assert.Equal(t, third+1, id)
	})

	t.Run("no leftover tables", func(t *testing.T) {
		rows, err := b.conn.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var name string
			require.NoError(t, rows.Scan(&name))
			assert.False(t, strings.Contains(name, "__migrate_"), "found %s", name)
		}
		require.NoError(t, rows.Err())
	})
}

func TestMigrateTable_KeepsIndexes(t *testing.T) {
	b := setupBackend(t)
	v1 := noteKind(types.Field{Name: "title", Type: types.Text})
	mustCreate(t, b, v1, map[string]any{"title": "a"})

	v2 := noteKind(
		types.Field{Name: "title", Type: types.Text},
		types.Field{Name: "slug", Type: types.Text},
	)
	v2.Indexes = []types.Index{{Name: "note_slug", Columns: []string{"slug"}, Unique: true}}
	require.NoError(t, b.Schema().MigrateTable(v2))

	var n int
	require.NoError(t, b.conn.ScanOne(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", []any{"note_slug"}, &n))
	assert.Equal(t, 1, n)

	mustCreate(t, b, v2, map[string]any{"title": "b", "slug": "s"})
	_, err := b.Store().Create(v2, map[string]any{"title": "c", "slug": "s"})
	assert.Error(t, err, "unique index is enforced after the rebuild")
}

func TestMigrateTable_MissingTableCreatesIt(t *testing.T) {
	b := setupBackend(t)
	k := noteKind(types.Field{Name: "title", Type: types.Text})

	require.NoError(t, b.Schema().MigrateTable(k))
	ok, err := b.Schema().TableExists("note")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMigrateTable_InvalidKind(t *testing.T) {
	b := setupBackend(t)
	err := b.Schema().MigrateTable(&types.Kind{Name: "bad name"})
	assert.ErrorIs(t, err, types.ErrInvalidKind)
}

func TestMigrateTable_Detached(t *testing.T) {
	b := NewBackend()
	err := b.Schema().MigrateTable(noteKind(types.Field{Name: "title", Type: types.Text}))
	assert.ErrorIs(t, err, types.ErrDetached)
}
