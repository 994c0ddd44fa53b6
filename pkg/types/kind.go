package types

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// StorageType is the declared storage class of a field.
type StorageType int

// Storage types. JSON and DateTime values are persisted as TEXT.
const (
	Integer StorageType = iota + 1
	Float
	Text
	DateTime
	JSON
)

var storageTypeNames = map[StorageType]string{
	Integer:  "integer",
	Float:    "float",
	Text:     "text",
	DateTime: "datetime",
	JSON:     "json",
}

func (s StorageType) String() string {
	if n, ok := storageTypeNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStorageType maps a descriptor name ("integer", "text", ...) to its
// StorageType. Matching is case-insensitive; "int" and "real" are accepted
// as aliases.
func ParseStorageType(name string) (StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "integer", "int":
		return Integer, nil
	case "float", "real":
		return Float, nil
	case "text", "string":
		return Text, nil
	case "datetime":
		return DateTime, nil
	case "json":
		return JSON, nil
	}
	return 0, errors.Wrapf(ErrInvalidKind, "unknown storage type %q", name)
}

// Constraint is a bitmask of column-level constraints.
type Constraint int

const (
	NotNull Constraint = 1 << iota
	Unique
)

// Has reports whether all bits of o are set in c.
func (c Constraint) Has(o Constraint) bool { return c&o == o }

// Validator checks a coerced field value before it is written.
// Implementations return a non-nil error describing why the value is
// rejected; the store wraps it into a *ValidationError.
type Validator interface {
	Validate(field string, value any) error
}

// Field describes one column of a kind's table.
type Field struct {
	Name        string
	Type        StorageType
	Constraints Constraint
	Validator   Validator
}

// Index describes a secondary index created alongside the kind's table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Kind describes an application-defined entity category.
// Fields are ordered; the order is the column order of the table.
type Kind struct {
	// Name is the class name recorded in the type registry.
	Name string

	// Table overrides the table name. Empty means strings.ToLower(Name).
	Table string

	Fields  []Field
	Indexes []Index
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedTables are the base tables of the store; no kind may use them.
var reservedTables = map[string]bool{
	"objtypes":     true,
	"links":        true,
	"translations": true,
	"dbconfig":     true,
}

// ValidIdentifier reports whether s is safe to splice into SQL as a table,
// column, or index name.
func ValidIdentifier(s string) bool {
	return len(s) <= 128 && identRe.MatchString(s)
}

// TableName returns the table backing the kind.
func (k *Kind) TableName() string {
	if k.Table != "" {
		return k.Table
	}
	return strings.ToLower(k.Name)
}

// Field returns the descriptor for name.
func (k *Kind) Field(name string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the declared field names in column order.
func (k *Kind) FieldNames() []string {
	names := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that the kind can be turned into a table definition.
// Returns an error wrapping ErrInvalidKind.
func (k *Kind) Validate() error {
	if k == nil {
		return errors.Wrap(ErrInvalidKind, "nil kind")
	}
	if k.Name == "" {
		return errors.Wrap(ErrInvalidKind, "kind name must not be empty")
	}
	table := k.TableName()
	if !ValidIdentifier(table) {
		return errors.Wrapf(ErrInvalidKind, "invalid table name %q", table)
	}
	if lower := strings.ToLower(table); reservedTables[lower] || strings.HasPrefix(lower, "sqlite_") {
		return errors.Wrapf(ErrInvalidKind, "table name %q is reserved", table)
	}
	seen := map[string]bool{"id": true}
	for _, f := range k.Fields {
		if !ValidIdentifier(f.Name) {
			return errors.Wrapf(ErrInvalidKind, "%s: invalid field name %q", k.Name, f.Name)
		}
		if seen[strings.ToLower(f.Name)] {
			return errors.Wrapf(ErrInvalidKind, "%s: duplicate field %q", k.Name, f.Name)
		}
		seen[strings.ToLower(f.Name)] = true
		if _, ok := storageTypeNames[f.Type]; !ok {
			return errors.Wrapf(ErrInvalidKind, "%s.%s: unknown storage type %d", k.Name, f.Name, f.Type)
		}
	}
	for _, idx := range k.Indexes {
		if !ValidIdentifier(idx.Name) {
			return errors.Wrapf(ErrInvalidKind, "%s: invalid index name %q", k.Name, idx.Name)
		}
		if len(idx.Columns) == 0 {
			return errors.Wrapf(ErrInvalidKind, "%s: index %q has no columns", k.Name, idx.Name)
		}
		for _, c := range idx.Columns {
			if !seen[strings.ToLower(c)] {
				return errors.Wrapf(ErrInvalidKind, "%s: index %q references unknown column %q", k.Name, idx.Name, c)
			}
		}
	}
	return nil
}

// Ref returns a link endpoint for the record with the given id.
func (k *Kind) Ref(id int64) Ref {
	return Ref{Kind: k, ID: id}
}

// KindEntry is one row of the persisted type registry.
type KindEntry struct {
	ID        int64
	ClassName string
	TableName string
}
