package sqlite

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestCoerce_IntegerStrings(t *testing.T) {
	f := types.Field{Name: "n", Type: types.Integer}
	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"leading zero", "010", 10, false},
		{"leading zero with eight", "08", 8, false},
		{"leading zero with nine", "09", 9, false},
		{"surrounding space", " 7 ", 7, false},
		{"negative", "-012", -12, false},
		{"json number", json.Number("010"), 10, false},
		{"native int", 42, 42, false},
		{"hex rejected", "0x10", 0, true},
		{"octal prefix rejected", "0o10", 0, true},
		{"fraction rejected", "1.5", 0, true},
		{"empty rejected", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(f, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_FloatStrings(t *testing.T) {
	f := types.Field{Name: "x", Type: types.Float}
	tests := []struct {
		name    string
		in      any
		want    float64
		wantErr bool
	}{
		{"leading zero", "010", 10, false},
		{"leading zero fraction", "08.5", 8.5, false},
		{"surrounding space", " 2.25 ", 2.25, false},
		{"json number", json.Number("0.5"), 0.5, false},
		{"hex rejected", "0x1p4", 0, true},
		{"garbage rejected", "ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(f, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFromColumn_IntegerText(t *testing.T) {
	got, err := fromColumn(types.Field{Type: types.Integer}, []byte("010"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestDateTime_KeepsNanoseconds(t *testing.T) {
	f := types.Field{Name: "at", Type: types.DateTime}
	in := time.Date(2024, 3, 5, 10, 20, 30, 123456789, time.FixedZone("CET", 3600))

	col, err := toColumn(f, in)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T09:20:30.123456789Z", col)

	out, err := fromColumn(f, col)
	require.NoError(t, err)
	assert.True(t, in.Equal(out.(time.Time)), "got %v", out)
}

func TestDateTime_TextOrderIsTimeOrder(t *testing.T) {
	f := types.Field{Name: "at", Type: types.DateTime}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	whole, err := toColumn(f, base)
	require.NoError(t, err)
	later, err := toColumn(f, base.Add(500*time.Millisecond))
	require.NoError(t, err)
	next, err := toColumn(f, base.Add(time.Second))
	require.NoError(t, err)

	assert.Less(t, whole.(string), later.(string))
	assert.Less(t, later.(string), next.(string))
}

func TestStore_IntegerLeadingZeroAndNanoRoundTrip(t *testing.T) {
	b := setupBackend(t)
	items := itemKind()
	at := time.Date(2024, 6, 1, 12, 0, 0, 987654321, time.UTC)

	id := mustCreate(t, b, items, map[string]any{"title": "lamp", "qty": "010", "added": at})
	rec, err := b.Store().Load(items, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Fields["qty"])
	assert.True(t, at.Equal(rec.Fields["added"].(time.Time)), "got %v", rec.Fields["added"])

	_, err = b.Store().Create(items, map[string]any{"title": "desk", "qty": "0x10"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "qty", verr.Field)

	n, err := b.Store().Count(items, "added > ?", "2024-06-01T12:00:00.000000000Z")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
