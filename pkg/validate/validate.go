// Package validate provides field validators for kind descriptors.
//
// Validators run after a value has been coerced to its field's storage
// type, so a DateTime validator may receive either a time.Time or the raw
// string a caller supplied to a Text field.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// Func adapts an ordinary function to types.Validator.
type Func func(field string, value any) error

// Validate calls f.
func (f Func) Validate(field string, value any) error { return f(field, value) }

// None accepts every value.
var None types.Validator = Func(func(string, any) error { return nil })

// NotNull rejects nil values.
var NotNull types.Validator = Func(func(field string, value any) error {
	if value == nil {
		return errors.Newf("%s cannot be null", field)
	}
	return nil
})

var emailRe = regexp.MustCompile(`(?i)^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+)*@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// Email accepts nil or a syntactically valid address.
var Email types.Validator = Func(func(field string, value any) error {
	if value == nil {
		return nil
	}
	s, err := cast.ToStringE(value)
	if err != nil || !emailRe.MatchString(s) {
		return errors.Newf("%v is not a valid email address", value)
	}
	return nil
})

// Layouts accepted by Date, Time, and DateTime.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05"
)

func layoutValidator(layout, what string) types.Validator {
	return Func(func(field string, value any) error {
		switch v := value.(type) {
		case nil, time.Time:
			return nil
		case string:
			if _, err := time.Parse(layout, v); err == nil {
				return nil
			}
			// DateTime fields arrive as RFC 3339 with an offset.
			if layout == DateTimeLayout {
				if _, err := time.Parse(time.RFC3339, v); err == nil {
					return nil
				}
			}
		}
		return errors.Newf("%v is not a valid %s", value, what)
	})
}

var (
	// Date accepts nil, time.Time, or a YYYY-MM-DD string.
	Date = layoutValidator(DateLayout, "date")

	// Time accepts nil, time.Time, or an HH:MM:SS string.
	Time = layoutValidator(TimeLayout, "time")

	// DateTime accepts nil, time.Time, or a YYYY-MM-DDTHH:MM:SS string.
	DateTime = layoutValidator(DateTimeLayout, "date and time")
)

// Range accepts nil or a numeric value within [min, max].
func Range(min, max float64) types.Validator {
	return Func(func(field string, value any) error {
		if value == nil {
			return nil
		}
		n, err := cast.ToFloat64E(value)
		if err != nil {
			return errors.Newf("%v is not a number", value)
		}
		if n < min {
			return errors.Newf("%v is too low (min %v)", value, min)
		}
		if n > max {
			return errors.Newf("%v is too high (max %v)", value, max)
		}
		return nil
	})
}

// All runs each validator in order and returns the first failure.
func All(vs ...types.Validator) types.Validator {
	return Func(func(field string, value any) error {
		for _, v := range vs {
			if err := v.Validate(field, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Named returns the validator for a descriptor name as written in kind
// files: "none", "notnull", "email", "date", "time", "datetime", or
// "range:MIN,MAX". Several names may be joined with "|".
func Named(expr string) (types.Validator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return None, nil
	}
	if strings.Contains(expr, "|") {
		var vs []types.Validator
		for _, part := range strings.Split(expr, "|") {
			v, err := Named(part)
			if err != nil {
				return nil, err
			}
			vs = append(vs, v)
		}
		return All(vs...), nil
	}

	name, arg, _ := strings.Cut(expr, ":")
	switch strings.ToLower(name) {
	case "none":
		return None, nil
	case "notnull", "not_null":
		return NotNull, nil
	case "email":
		return Email, nil
	case "date":
		return Date, nil
	case "time":
		return Time, nil
	case "datetime":
		return DateTime, nil
	case "range":
		lo, hi, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, errors.Newf("range validator needs MIN,MAX: %q", expr)
		}
		min, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "range min %q", lo)
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "range max %q", hi)
		}
		return Range(min, max), nil
	}
	return nil, errors.Newf("unknown validator %q", expr)
}
