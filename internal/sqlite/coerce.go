package sqlite

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// timeLayout is the TEXT encoding of DateTime columns. Values are stored in
// UTC with a fixed-width nanosecond fraction so that lexical order matches
// time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// createDefault returns the value of an unset field on create: zero for
// NOT NULL numeric fields, the epoch for DateTime fields, nil otherwise.
func createDefault(f types.Field) any {
	switch {
	case f.Type == types.DateTime:
		return types.Epoch
	case f.Type == types.Integer && f.Constraints.Has(types.NotNull):
		return int64(0)
	case f.Type == types.Float && f.Constraints.Has(types.NotNull):
		return float64(0)
	}
	return nil
}

// columnDefault is the column value given to a field added by a migration.
// Unlike createDefault it must satisfy NOT NULL for every storage type.
func columnDefault(f types.Field) (any, error) {
	if f.Constraints.Has(types.NotNull) {
		switch f.Type {
		case types.Text:
			return "", nil
		case types.JSON:
			return "null", nil
		}
	}
	return toColumn(f, createDefault(f))
}

// coerce converts a caller-supplied value to the canonical Go type of the
// field's storage type: int64, float64, string, time.Time (UTC), or any
// JSON-encodable value. nil passes through.
func coerce(f types.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case types.Integer:
		return toInt64(v)
	case types.Float:
		return toFloat64(v)
	case types.Text:
		return cast.ToStringE(v)
	case types.DateTime:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case types.JSON:
		if raw, ok := v.(json.RawMessage); ok {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, err
			}
			return decoded, nil
		}
		if _, err := json.Marshal(v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errors.Newf("unknown storage type %d", f.Type)
}

// toColumn encodes a coerced value for the driver.
func toColumn(f types.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case types.DateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, errors.Newf("expected time.Time, got %T", v)
		}
		return t.UTC().Format(timeLayout), nil
	case types.JSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

// fromColumn decodes a driver value read from a field's column.
func fromColumn(f types.Field, raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case types.Integer:
		return toInt64(raw)
	case types.Float:
		return toFloat64(raw)
	case types.Text:
		return cast.ToStringE(raw)
	case types.DateTime:
		if s, ok := raw.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC(), nil
			}
		}
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case types.JSON:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
	return raw, nil
}

// toInt64 converts v to int64. Strings are always read as base 10, so "010"
// is ten and "0x10" is rejected.
func toInt64(v any) (int64, error) {
	switch s := v.(type) {
	case string:
		return parseInt(s)
	case json.Number:
		return parseInt(string(s))
	}
	return cast.ToInt64E(v)
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Newf("%q is not a base-10 integer", s)
	}
	return n, nil
}

// toFloat64 converts v to float64, reading strings as decimal.
func toFloat64(v any) (float64, error) {
	switch s := v.(type) {
	case string:
		return parseFloat(s)
	case json.Number:
		return parseFloat(string(s))
	}
	return cast.ToFloat64E(v)
}

func parseFloat(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(strings.TrimLeft(t, "+-"), "0x") || strings.HasPrefix(strings.TrimLeft(t, "+-"), "0X") {
		return 0, errors.Newf("%q is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, errors.Newf("%q is not a decimal number", s)
	}
	return f, nil
}
