package sqlite

import (
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.Settings = (*Settings)(nil)

// Settings is the dbconfig key/value table.
type Settings struct {
	conn *Conn
}

func newSettings(conn *Conn) *Settings {
	return &Settings{conn: conn}
}

// Get returns the value stored under key and whether it exists.
func (s *Settings) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.ScanOne("SELECT value FROM dbconfig WHERE key = ?", []any{key}, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "reading setting %q", key)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(key, value string) error {
	if key == "" {
		return &types.ValidationError{Field: "key", Reason: "must not be empty"}
	}
	_, err := s.conn.Exec(
		"INSERT INTO dbconfig (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return errors.Wrapf(err, "writing setting %q", key)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Settings) Delete(key string) error {
	if _, err := s.conn.Exec("DELETE FROM dbconfig WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "deleting setting %q", key)
	}
	return nil
}
