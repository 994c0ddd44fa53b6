package types

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestRecordAccessors(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &Record{
		Kind: "User",
		ID:   7,
		Fields: map[string]any{
			"age":   int64(31),
			"score": 2.5,
			"name":  "Ann",
			"born":  ts,
			"note":  nil,
		},
	}

	assert.Equal(t, int64(31), r.Int("age"))
	assert.Equal(t, 2.5, r.Float("score"))
	assert.Equal(t, "Ann", r.Text("name"))
	assert.True(t, ts.Equal(r.Time("born")))
	assert.Equal(t, "", r.Text("note"))
	assert.Equal(t, int64(0), r.Int("missing"))

	v, ok := r.Get("note")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRefInitialized(t *testing.T) {
	k := &Kind{Name: "User"}
	assert.True(t, k.Ref(1).Initialized())
	assert.False(t, k.Ref(0).Initialized())
	assert.False(t, Ref{ID: 3}.Initialized())
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	var err error = &ValidationError{Field: "email", Reason: "not an address"}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "invalid email: not an address", err.Error())

	wrapped := errors.Wrap(err, "create user")
	assert.True(t, errors.Is(wrapped, ErrValidation))

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "email", ve.Field)
}
