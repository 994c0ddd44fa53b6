package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// Conn is the single connection the store runs on. It classifies driver
// errors into the store's error kinds and scopes multi-step writes in
// transactions. A zero Conn is detached.
type Conn struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens the SQLite database at path and applies the connection pragmas.
// The pool is limited to one connection: SQLite has a single writer and an
// in-memory database exists only on the connection that created it.
func Open(path string, busyTimeout int, log *zap.SugaredLogger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Debugw("Opening database", "path", path, "busy_timeout", busyTimeout)

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "opening database"), types.ErrStoreUnavailable)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Mark(errors.Wrap(err, "connecting to database"), types.ErrStoreUnavailable)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(classify(err), "executing %q", p)
		}
	}

	return newConn(db, log), nil
}

// newConn wraps an already configured *sql.DB.
func newConn(db *sql.DB, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Conn{db: db, log: log}
}

// Close closes the database. Subsequent operations return ErrDetached.
func (c *Conn) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Conn) handle() (*sql.DB, error) {
	if c == nil || c.db == nil {
		return nil, types.ErrDetached
	}
	return c.db, nil
}

// Exec runs a statement outside any transaction.
func (c *Conn) Exec(query string, args ...any) (sql.Result, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	res, err := db.Exec(query, args...)
	return res, classify(err)
}

// Query runs a query outside any transaction. The caller must close the rows
// before issuing another statement on this Conn.
func (c *Conn) Query(query string, args ...any) (*sql.Rows, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(query, args...)
	return rows, classify(err)
}

// ScanOne runs a single-row query and scans it into dest. Returns
// sql.ErrNoRows unchanged when nothing matches.
func (c *Conn) ScanOne(query string, args []any, dest ...any) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	return classify(db.QueryRow(query, args...).Scan(dest...))
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. fn must use tx for every statement; the Conn's
// only connection is held by the transaction until it finishes.
func (c *Conn) WithTx(fn func(tx *sql.Tx) error) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(classify(err), "beginning transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(classify(err), "committing transaction")
	}
	return nil
}

// TableExists reports whether a table with the given name exists.
func (c *Conn) TableExists(name string) (bool, error) {
	var n int
	err := c.ScanOne("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", []any{name}, &n)
	if err != nil {
		return false, errors.Wrapf(err, "checking table %s", name)
	}
	return n > 0, nil
}

// unavailableMarkers are driver messages meaning the engine cannot serve the
// request right now.
var unavailableMarkers = []string{
	"database is locked",
	"database is busy",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
	"database is closed",
	"unable to open database",
	"disk i/o error",
}

// classify marks driver errors with the store error they represent:
// a missing table becomes ErrSchemaMissing, lock and connection failures
// become ErrStoreUnavailable. The original error stays in the chain.
// The driver does not export typed errors for these cases, so matching is
// done on the message.
func classify(err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if errors.Is(err, types.ErrSchemaMissing) || errors.Is(err, types.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Mark(err, types.ErrStoreUnavailable)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such table") {
		return errors.Mark(err, types.ErrSchemaMissing)
	}
	for _, m := range unavailableMarkers {
		if strings.Contains(msg, m) {
			return errors.Mark(err, types.ErrStoreUnavailable)
		}
	}
	return err
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
