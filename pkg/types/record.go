package types

import (
	"time"

	"github.com/spf13/cast"
)

// Epoch is the default value of an unset DateTime field.
var Epoch = time.Unix(0, 0).UTC()

// Record is one stored entity of a kind.
type Record struct {
	// Kind is the class name of the record's kind.
	Kind string

	// ID is the local id, assigned on first create. Zero means not stored.
	ID int64

	// Fields holds one value per loaded field. Integer fields hold int64,
	// Float fields float64, Text fields string, DateTime fields time.Time,
	// JSON fields the decoded value. NULL columns are present with a nil
	// value.
	Fields map[string]any
}

// Get returns the raw value of a field and whether it is present.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Int returns the field coerced to int64, or zero.
func (r *Record) Int(name string) int64 {
	return cast.ToInt64(r.Fields[name])
}

// Float returns the field coerced to float64, or zero.
func (r *Record) Float(name string) float64 {
	return cast.ToFloat64(r.Fields[name])
}

// Text returns the field coerced to a string, or "".
func (r *Record) Text(name string) string {
	return cast.ToString(r.Fields[name])
}

// Time returns the field coerced to a time, or the zero time.
func (r *Record) Time(name string) time.Time {
	return cast.ToTime(r.Fields[name])
}

// Ref is a link endpoint: a kind plus a local id.
type Ref struct {
	Kind *Kind
	ID   int64
}

// Initialized reports whether the endpoint refers to a stored record.
func (r Ref) Initialized() bool {
	return r.Kind != nil && r.ID > 0
}
