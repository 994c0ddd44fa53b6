// Package sqlite implements the possum store on SQLite: the type registry,
// per-kind schema management, the entity store, the link graph, and the
// dbconfig and translations tables.
package sqlite

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/pkg/cursor"
	"github.com/mesh-intelligence/possum/pkg/types"
)

// DBFile is the database file name inside the data directory.
const DBFile = "possum.db"

var _ types.Database = (*Backend)(nil)

// Backend implements types.Database on SQLite. Components are built on
// Attach and share one connection; after Detach they return ErrDetached.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	log      *zap.SugaredLogger

	conn         *Conn
	registry     *Registry
	schema       *Schema
	store        *Store
	links        *LinkGraph
	settings     *Settings
	translations *Translations
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used by the backend and its components.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBackend creates a detached backend. Call Attach to open a database.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(b)
	}
	_ = b.wire(&Conn{log: b.log}, types.DefaultLanguage)
	return b
}

// wire builds the components over conn.
func (b *Backend) wire(conn *Conn, lang string) error {
	tr, err := newTranslations(conn, lang)
	if err != nil {
		return err
	}
	b.conn = conn
	b.registry = newRegistry(conn, b.log)
	b.schema = newSchema(conn, b.log)
	b.store = newStore(conn, b.registry, b.schema, b.log)
	b.links = newLinkGraph(conn, b.registry, b.store, b.log)
	b.settings = newSettings(conn)
	b.translations = tr
	return nil
}

// Attach opens <DataDir>/possum.db, creating the directory and base tables
// if needed. DataDir ":memory:" opens a private in-memory database.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if _, err := languageCode(config.GetLanguage()); err != nil {
		return err
	}

	path := types.MemoryDataDir
	if config.DataDir != types.MemoryDataDir {
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return errors.Wrapf(err, "creating data dir %s", dataDir)
		}
		path = filepath.Join(dataDir, DBFile)
	}

	conn, err := Open(path, config.GetBusyTimeout(), b.log)
	if err != nil {
		return err
	}
	if err := applyBaseSchema(conn); err != nil {
		conn.Close()
		return err
	}
	if err := b.wire(conn, config.GetLanguage()); err != nil {
		conn.Close()
		return err
	}

	b.config = config
	b.attached = true
	b.log.Infow("Attached", "path", path)
	return nil
}

// Detach closes the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	err := b.conn.Close()
	_ = b.wire(&Conn{log: b.log}, types.DefaultLanguage)
	if err != nil {
		return errors.Wrap(err, "closing database")
	}
	b.log.Infow("Detached")
	return nil
}

// Config returns the configuration passed to Attach.
func (b *Backend) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Registry returns the type registry.
func (b *Backend) Registry() types.Registry { return b.component().registry }

// Schema returns the schema manager.
func (b *Backend) Schema() types.SchemaManager { return b.component().schema }

// Store returns the entity store.
func (b *Backend) Store() types.EntityStore { return b.component().store }

// Links returns the link graph.
func (b *Backend) Links() types.LinkGraph { return b.component().links }

// Settings returns the dbconfig key/value table.
func (b *Backend) Settings() types.Settings { return b.component().settings }

// Translations returns the translation table.
func (b *Backend) Translations() types.Translations { return b.component().translations }

// Exporter returns the store and link graph with their JSONL export and
// import methods.
func (b *Backend) Exporter() (*Store, *LinkGraph) {
	c := b.component()
	return c.store, c.links
}

// Cursor returns a lazy cursor over every record of k, using the
// configured window size.
func (b *Backend) Cursor(k *types.Kind, opts ...cursor.Option) *cursor.Cursor {
	c := b.component()
	opts = append([]cursor.Option{cursor.WithWindowSize(b.Config().GetWindowSize())}, opts...)
	return cursor.New(c.store, k, opts...)
}

type components struct {
	registry     *Registry
	schema       *Schema
	store        *Store
	links        *LinkGraph
	settings     *Settings
	translations *Translations
}

func (b *Backend) component() components {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return components{
		registry:     b.registry,
		schema:       b.schema,
		store:        b.store,
		links:        b.links,
		settings:     b.settings,
		translations: b.translations,
	}
}
