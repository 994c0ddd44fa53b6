package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.SchemaManager = (*Schema)(nil)

// Schema creates and rebuilds per-kind tables from their field descriptors.
type Schema struct {
	conn *Conn
	log  *zap.SugaredLogger
}

func newSchema(conn *Conn, log *zap.SugaredLogger) *Schema {
	return &Schema{conn: conn, log: log}
}

// CreateTableSQL returns the statements EnsureTable would run for k.
func (s *Schema) CreateTableSQL(k *types.Kind) ([]string, error) {
	return kindDDL(k)
}

// TableExists reports whether the named table exists.
func (s *Schema) TableExists(name string) (bool, error) {
	return s.conn.TableExists(name)
}

// EnsureTable creates the kind's table and indexes if the table is absent.
func (s *Schema) EnsureTable(k *types.Kind) error {
	stmts, err := kindDDL(k)
	if err != nil {
		return err
	}
	table := k.TableName()

	exists, err := s.conn.TableExists(table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.conn.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return errors.Wrapf(err, "creating table %s", table)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infow("Created table", "kind", k.Name, "table", table, "fields", len(k.Fields))
	return nil
}

// Columns returns the column names of table in declaration order.
func (s *Schema) Columns(table string) ([]string, error) {
	rows, err := s.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading columns of %s", table)
	}
	defer rows.Close()
	return scanColumnNames(rows)
}

// MigrateTable rebuilds the kind's table to match its current descriptors.
// Columns present in both the old table and the kind are copied, new columns
// receive storage-type defaults, columns no longer declared are dropped.
// The rebuild runs in one transaction; any failure leaves the old table in
// place and returns an error matching ErrMigrationFailed.
func (s *Schema) MigrateTable(k *types.Kind) error {
	if err := k.Validate(); err != nil {
		return err
	}
	table := k.TableName()

	exists, err := s.conn.TableExists(table)
	if err != nil {
		return err
	}
	if !exists {
		return s.EnsureTable(k)
	}

	tmp := table + "__migrate_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	var copied, filled, dropped int

	err = s.conn.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
		if err != nil {
			return errors.Wrap(err, "reading old columns")
		}
		oldCols, err := scanColumnNames(rows)
		rows.Close()
		if err != nil {
			return err
		}
		old := make(map[string]bool, len(oldCols))
		for _, c := range oldCols {
			old[strings.ToLower(c)] = true
		}

		seq, err := readSequence(tx, table)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(createTableSQL(tmp, k)); err != nil {
			return errors.Wrap(err, "creating replacement table")
		}

		dest := []string{"id"}
		src := []string{quoteIdent("id")}
		var args []any
		for _, f := range k.Fields {
			if old[strings.ToLower(f.Name)] {
				dest = append(dest, f.Name)
				src = append(src, quoteIdent(f.Name))
				copied++
				continue
			}
			v, err := columnDefault(f)
			if err != nil {
				return err
			}
			if v == nil {
				continue
			}
			dest = append(dest, f.Name)
			src = append(src, "?")
			args = append(args, v)
			filled++
		}
		dropped = len(oldCols) - 1 - copied

		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quoteIdent(tmp), strings.Join(quoteIdents(dest), ", "), strings.Join(src, ", "), quoteIdent(table))
		if _, err := tx.Exec(copySQL, args...); err != nil {
			return errors.Wrap(err, "copying rows")
		}
		if _, err := tx.Exec(fmt.Sprintf("DROP TABLE %s", quoteIdent(table))); err != nil {
			return errors.Wrap(err, "dropping old table")
		}
		if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table))); err != nil {
			return errors.Wrap(err, "renaming replacement table")
		}
		for _, idx := range k.Indexes {
			if _, err := tx.Exec(createIndexSQL(table, idx)); err != nil {
				return errors.Wrapf(err, "creating index %s", idx.Name)
			}
		}
		return restoreSequence(tx, table, seq)
	})
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "migrating %s", table), types.ErrMigrationFailed)
	}

	s.log.Infow("Migrated table",
		"kind", k.Name,
		"table", table,
		"copied_columns", copied,
		"new_columns", len(k.Fields)-copied,
		"defaulted_columns", filled,
		"dropped_columns", dropped,
	)
	return nil
}

// scanColumnNames reads the name column of a PRAGMA table_info result.
func scanColumnNames(rows *sql.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, errors.Wrap(err, "scanning table_info")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// readSequence returns the AUTOINCREMENT high-water mark of table, or zero.
func readSequence(tx *sql.Tx, table string) (int64, error) {
	var seq int64
	err := tx.QueryRow("SELECT seq FROM sqlite_sequence WHERE name = ?", table).Scan(&seq)
	switch {
	case err == nil:
		return seq, nil
	case errors.Is(err, sql.ErrNoRows), errors.Is(classify(err), types.ErrSchemaMissing):
		return 0, nil
	default:
		return 0, errors.Wrap(err, "reading id sequence")
	}
}

// restoreSequence keeps ids of deleted rows from being reused after a
// rebuild: the copied table only knows the highest surviving id.
func restoreSequence(tx *sql.Tx, table string, seq int64) error {
	if seq == 0 {
		return nil
	}
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
		return errors.Wrap(err, "clearing id sequence")
	}
	if _, err := tx.Exec("INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", table, seq); err != nil {
		return errors.Wrap(err, "restoring id sequence")
	}
	return nil
}
