package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/possum/pkg/types"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		v       types.Validator
		value   any
		wantErr bool
	}{
		{"none accepts nil", None, nil, false},
		{"notnull rejects nil", NotNull, nil, true},
		{"notnull accepts zero", NotNull, 0, false},
		{"email accepts address", Email, "ann@example.com", false},
		{"email accepts nil", Email, nil, false},
		{"email rejects missing at", Email, "ann.example.com", true},
		{"email rejects missing domain", Email, "ann@", true},
		{"date accepts iso date", Date, "2024-02-29", false},
		{"date rejects bad day", Date, "2023-02-30", true},
		{"date accepts time value", Date, time.Now(), false},
		{"time accepts clock", Time, "23:59:59", false},
		{"time rejects hour 25", Time, "25:00:00", true},
		{"datetime accepts local form", DateTime, "2024-01-02T03:04:05", false},
		{"datetime accepts rfc3339", DateTime, "2024-01-02T03:04:05Z", false},
		{"datetime rejects date only", DateTime, "2024-01-02", true},
		{"datetime rejects int", DateTime, 5, true},
		{"range accepts inside", Range(1, 10), int64(5), false},
		{"range accepts bounds", Range(1, 10), 10.0, false},
		{"range rejects low", Range(1, 10), 0, true},
		{"range rejects high", Range(1, 10), 11, true},
		{"range rejects text", Range(1, 10), "many", true},
		{"range accepts nil", Range(1, 10), nil, false},
		{"all stops at first failure", All(NotNull, Range(0, 1)), 2, true},
		{"all passes", All(NotNull, Range(0, 1)), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate("field", tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNamed(t *testing.T) {
	for _, expr := range []string{"", "none", "notnull", "NotNull", "email", "date", "time", "datetime", "range:0,100", "notnull|email"} {
		v, err := Named(expr)
		require.NoError(t, err, expr)
		require.NotNil(t, v, expr)
	}

	v, err := Named("range: 1 , 3")
	require.NoError(t, err)
	assert.NoError(t, v.Validate("n", 2))
	assert.Error(t, v.Validate("n", 4))

	v, err = Named("notnull|email")
	require.NoError(t, err)
	assert.Error(t, v.Validate("mail", nil))
	assert.Error(t, v.Validate("mail", "nope"))
	assert.NoError(t, v.Validate("mail", "a@b.io"))

	for _, bad := range []string{"range", "range:1", "range:a,2", "range:1,b", "phone"} {
		_, err := Named(bad)
		assert.Error(t, err, bad)
	}
}
