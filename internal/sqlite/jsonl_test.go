package sqlite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestJSONL_ReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	content := "{\"a\":1}\n\nnot json\n{\"b\":2}\n{\"c\":\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lines, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"a":1}`, string(lines[0]))
	assert.JSONEq(t, `{"b":2}`, string(lines[1]))
}

func TestJSONL_WriteCreatesDirAndLeavesNoTemp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path := filepath.Join(dir, "x.jsonl")

	require.NoError(t, writeJSONL(path, nil))
	require.NoError(t, writeJSONL(path, []json.RawMessage{[]byte(`{"a":1}`)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONL_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	users, items := userKind(), itemKind()
	added := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)

	src := attachAt(t, filepath.Join(dir, "src"))
	ann := mustCreate(t, src, users, map[string]any{"name": "Ann"})
	bob := mustCreate(t, src, users, map[string]any{"name": "Bob"})
	gone := mustCreate(t, src, items, map[string]any{"title": "gone"})
	lamp := mustCreate(t, src, items, map[string]any{
		"title": "lamp", "qty": 2, "price": 9.5, "added": added, "tags": map[string]any{"room": "hall"},
	})
	require.NoError(t, src.Store().Delete(items, gone))
	require.NoError(t, src.Links().Link(users.Ref(ann), items.Ref(lamp), types.LinkAttrs{Rank: 3, Note: "owner"}))
	require.NoError(t, src.Links().Link(users.Ref(bob), users.Ref(ann), types.LinkAttrs{Subtype: 1}))

	store, links := src.Exporter()
	n, err := store.ExportKind(users, filepath.Join(dir, "users.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.ExportKind(items, filepath.Join(dir, "items.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = links.Export(filepath.Join(dir, "links.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// src registered items before users; dst swaps the kind ids.
	srcItems, err := src.Registry().Resolve(items)
	require.NoError(t, err)
	dst := attachAt(t, filepath.Join(dir, "dst"))
	_, err = dst.Registry().Resolve(users)
	require.NoError(t, err)
	dstItems, err := dst.Registry().Resolve(items)
	require.NoError(t, err)
	require.NotEqual(t, srcItems, dstItems)

	store, links = dst.Exporter()
	n, err = store.ImportKind(users, filepath.Join(dir, "users.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.ImportKind(items, filepath.Join(dir, "items.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = links.Import(filepath.Join(dir, "links.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := dst.Store().Load(items, lamp)
	require.NoError(t, err)
	assert.Equal(t, "lamp", rec.Text("title"))
	assert.Equal(t, int64(2), rec.Int("qty"))
	assert.Equal(t, 9.5, rec.Float("price"))
	assert.True(t, added.Equal(rec.Time("added")))
	assert.Equal(t, map[string]any{"room": "hall"}, rec.Fields["tags"])

	recs, err := dst.Links().Linked(users.Ref(ann), items, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, lamp, recs[0].ID)
	assert.Equal(t, 3, recs[0].Rank)
	assert.Equal(t, "owner", recs[0].Note)

	assert.Equal(t, []int64{ann}, linkedIDs(t, dst, users.Ref(bob), users, 1))

	t.Run("imported ids keep later creates from colliding", func(t *testing.T) {
		id := mustCreate(t, dst, items, map[string]any{"title": "new"})
		assert.Greater(t, id, lamp)
	})

	t.Run("reimport replaces rows", func(t *testing.T) {
		n, err := store.ImportKind(users, filepath.Join(dir, "users.jsonl"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		total, err := dst.Store().Count(users, "")
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})
}

func TestJSONL_ImportIsAllOrNothing(t *testing.T) {
	b := setupBackend(t)
	items := itemKind()
	path := filepath.Join(t.TempDir(), "items.jsonl")
	content := `{"id":1,"title":"ok","qty":1}
{"id":2,"qty":"many"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store, _ := b.Exporter()
	_, err := store.ImportKind(items, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)

	n, err := b.Store().Count(items, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJSONL_ImportMissingFile(t *testing.T) {
	b := setupBackend(t)
	store, links := b.Exporter()
	_, err := store.ImportKind(userKind(), filepath.Join(t.TempDir(), "none.jsonl"))
	assert.Error(t, err)
	_, err = links.Import(filepath.Join(t.TempDir(), "none.jsonl"))
	assert.Error(t, err)
}
