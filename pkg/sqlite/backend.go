// Package sqlite exposes the SQLite possum backend while keeping its
// implementation internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/internal/sqlite"
	"github.com/mesh-intelligence/possum/pkg/types"
)

// NewBackend creates a detached SQLite database. Call Attach with a Config
// to open it. A nil logger discards log output.
//
// Example:
//
//	db := sqlite.NewBackend(nil)
//	err := db.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".possum-db",
//	})
//	defer db.Detach()
func NewBackend(log *zap.SugaredLogger) types.Database {
	return sqlite.NewBackend(sqlite.WithLogger(log))
}
