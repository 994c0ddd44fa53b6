package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestSettings(t *testing.T) {
	b := setupBackend(t)
	s := b.Settings()

	_, ok, err := s.Get("schema_version")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("schema_version", "1"))
	require.NoError(t, s.Set("schema_version", "2"))
	v, ok, err := s.Get("schema_version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	require.NoError(t, s.Set("empty", ""))
	v, ok, err = s.Get("empty")
	require.NoError(t, err)
	assert.True(t, ok, "an empty value is still stored")
	assert.Empty(t, v)

	require.NoError(t, s.Delete("schema_version"))
	require.NoError(t, s.Delete("schema_version"))
	_, ok, err = s.Get("schema_version")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettings_EmptyKey(t *testing.T) {
	b := setupBackend(t)
	err := b.Settings().Set("", "x")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSettings_PersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b := attachAt(t, dir)
	require.NoError(t, b.Settings().Set("owner", "ann"))
	require.NoError(t, b.Detach())

	b = attachAt(t, dir)
	v, ok, err := b.Settings().Get("owner")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ann", v)
}
