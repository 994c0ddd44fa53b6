package types

// Query selects records of one kind. Where and OrderBy are SQL fragments
// passed through to the store without the WHERE / ORDER BY keywords; Args
// bind the Where placeholders. Zero Limit means unlimited. Empty Fields
// loads every declared field.
type Query struct {
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int
	Fields  []string
}
