package sqlite

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// Base tables shared by every kind. The table and column names are the
// on-disk contract of the store.
const (
	createObjtypes = `CREATE TABLE IF NOT EXISTS objtypes (
    id INTEGER PRIMARY KEY,
    classname TEXT NOT NULL,
    tablename TEXT NOT NULL UNIQUE
)`

	// The subtype is part of the key: two records may be related under
	// several subtypes at once.
	createLinks = `CREATE TABLE IF NOT EXISTS links (
    type1 INTEGER NOT NULL,
    id1 INTEGER NOT NULL,
    type2 INTEGER NOT NULL,
    id2 INTEGER NOT NULL,
    type INTEGER NOT NULL DEFAULT 0,
    num INTEGER NOT NULL DEFAULT 0,
    comment TEXT,
    PRIMARY KEY (type1, id1, type2, id2, type)
)`

	createTranslations = `CREATE TABLE IF NOT EXISTS translations (
    id INTEGER PRIMARY KEY,
    textid INTEGER,
    language INTEGER NOT NULL,
    text TEXT NOT NULL
)`

	createDBConfig = `CREATE TABLE IF NOT EXISTS dbconfig (
    id INTEGER PRIMARY KEY,
    key TEXT NOT NULL UNIQUE,
    value TEXT NOT NULL
)`
)

// Index DDL for the base tables.
const (
	idxLinksSecond      = `CREATE INDEX IF NOT EXISTS idx_links_second ON links(type2, id2)`
	idxTranslationsText = `CREATE INDEX IF NOT EXISTS idx_translations_text ON translations(textid, language)`
)

// baseDDL lists the base schema in creation order.
var baseDDL = []string{
	createObjtypes,
	createLinks,
	createTranslations,
	createDBConfig,
	idxLinksSecond,
	idxTranslationsText,
}

// applyBaseSchema creates the base tables if they are missing.
func applyBaseSchema(c *Conn) error {
	for _, stmt := range baseDDL {
		if _, err := c.Exec(stmt); err != nil {
			return errors.Wrap(err, "applying base schema")
		}
	}
	return nil
}

// columnType maps a storage type to its SQLite column type.
func columnType(t types.StorageType) string {
	switch t {
	case types.Integer:
		return "INTEGER"
	case types.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// quoteIdent quotes a validated table, column, or index name so that SQL
// keywords such as "order" can be used.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

func columnDef(f types.Field) string {
	var b strings.Builder
	b.WriteString(quoteIdent(f.Name))
	b.WriteByte(' ')
	b.WriteString(columnType(f.Type))
	if f.Constraints.Has(types.NotNull) {
		b.WriteString(" NOT NULL")
	}
	if f.Constraints.Has(types.Unique) {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// createTableSQL builds the CREATE TABLE statement for k under the given
// table name.
func createTableSQL(table string, k *types.Kind) string {
	defs := make([]string, 0, len(k.Fields)+1)
	defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, f := range k.Fields {
		defs = append(defs, columnDef(f))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", quoteIdent(table), strings.Join(defs, ",\n    "))
}

func createIndexSQL(table string, idx types.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)",
		unique, quoteIdent(idx.Name), quoteIdent(table), strings.Join(quoteIdents(idx.Columns), ", "))
}

// kindDDL returns the table and index statements for k.
func kindDDL(k *types.Kind) ([]string, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	table := k.TableName()
	stmts := []string{createTableSQL(table, k)}
	for _, idx := range k.Indexes {
		stmts = append(stmts, createIndexSQL(table, idx))
	}
	return stmts, nil
}
