package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// setupBackend attaches a Backend on a fresh database file in a temp dir.
func setupBackend(t *testing.T) *Backend {
	t.Helper()
	return attachAt(t, t.TempDir())
}

func attachAt(t *testing.T, dir string) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{
		Backend: types.BackendSQLite,
		DataDir: dir,
	}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func userKind() *types.Kind {
	return &types.Kind{
		Name: "user",
		Fields: []types.Field{
			{Name: "name", Type: types.Text},
		},
	}
}

func itemKind() *types.Kind {
	return &types.Kind{
		Name:  "Item",
		Table: "items",
		Fields: []types.Field{
			{Name: "title", Type: types.Text, Constraints: types.NotNull},
			{Name: "qty", Type: types.Integer, Constraints: types.NotNull},
			{Name: "price", Type: types.Float},
			{Name: "added", Type: types.DateTime},
			{Name: "tags", Type: types.JSON},
		},
	}
}

// mustCreate creates a record and returns its id.
func mustCreate(t *testing.T, b *Backend, k *types.Kind, values map[string]any) int64 {
	t.Helper()
	id, err := b.Store().Create(k, values)
	require.NoError(t, err)
	return id
}

// linkedIDs returns the ids of Linked in result order.
func linkedIDs(t *testing.T, b *Backend, owner types.Ref, other *types.Kind, subtype int) []int64 {
	t.Helper()
	recs, err := b.Links().Linked(owner, other, subtype)
	require.NoError(t, err)
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}
