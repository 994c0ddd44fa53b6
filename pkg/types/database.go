package types

// Database defines backend-agnostic access to a possum store. Callers attach
// to a backend, use the component accessors, and detach when done. Component
// operations on a detached database return ErrDetached.
type Database interface {
	// Attach opens the backend described by config, creating the data
	// directory and the base tables if needed. Returns ErrAlreadyAttached
	// if called while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	Detach() error

	Registry() Registry
	Schema() SchemaManager
	Store() EntityStore
	Links() LinkGraph
	Settings() Settings
	Translations() Translations
}

// Registry assigns stable integer ids to kinds.
type Registry interface {
	// Resolve returns the kind id, creating the registry row on first use.
	Resolve(k *Kind) (int64, error)

	// Lookup returns the registry row for id, or ErrNotFound.
	Lookup(id int64) (KindEntry, error)

	// Entries lists every registered kind ordered by id.
	Entries() ([]KindEntry, error)
}

// SchemaManager creates and migrates per-kind tables.
type SchemaManager interface {
	EnsureTable(k *Kind) error
	MigrateTable(k *Kind) error
	TableExists(name string) (bool, error)

	// CreateTableSQL returns the DDL EnsureTable would run for k.
	CreateTableSQL(k *Kind) ([]string, error)

	// Columns lists the column names of table in declaration order.
	Columns(table string) ([]string, error)
}

// EntityStore provides CRUD over records of any kind.
type EntityStore interface {
	Create(k *Kind, values map[string]any) (int64, error)
	Update(k *Kind, id int64, values map[string]any) error
	Save(k *Kind, r *Record) error
	Load(k *Kind, id int64, fields ...string) (*Record, error)
	Find(k *Kind, q Query) ([]*Record, error)
	Count(k *Kind, where string, args ...any) (int, error)
	Delete(k *Kind, id int64) error
	DeleteWhere(k *Kind, where string, args ...any) (int, error)
	MaxID(k *Kind) (int64, error)
}

// LinkGraph stores typed, ranked associations between records of any kinds.
type LinkGraph interface {
	Link(a, b Ref, attrs LinkAttrs) error
	LinkOrderedSet(owner Ref, members []Ref, subtype int, note string) error
	Unlink(a, b Ref, subtype int) error
	Linked(owner Ref, other *Kind, subtype int, fields ...string) ([]LinkedRecord, error)
	Links(r Ref) ([]Link, error)
	Tidy() (int, error)
}

// Settings is the dbconfig key/value store.
type Settings interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Translations looks up localized text by text id.
type Translations interface {
	Translate(textID int64, vars map[string]any) (string, error)
	Set(language string, text string, textID int64) (int64, error)
}
