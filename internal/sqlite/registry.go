package sqlite

import (
	"database/sql"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.Registry = (*Registry)(nil)

// Registry assigns each kind a stable integer id persisted in objtypes.
// Kinds are keyed by table name. The cache is filled from objtypes on first
// use and only grows; ids are never reassigned.
type Registry struct {
	conn *Conn
	log  *zap.SugaredLogger

	mu      sync.Mutex
	loaded  bool
	byTable map[string]types.KindEntry
	byID    map[int64]types.KindEntry
}

func newRegistry(conn *Conn, log *zap.SugaredLogger) *Registry {
	return &Registry{
		conn:    conn,
		log:     log,
		byTable: make(map[string]types.KindEntry),
		byID:    make(map[int64]types.KindEntry),
	}
}

// Resolve returns the id of k, registering it on first reference.
// A failed insert returns an error matching ErrStoreUnavailable and leaves
// the cache unchanged.
func (r *Registry) Resolve(k *types.Kind) (int64, error) {
	if k == nil || k.Name == "" {
		return 0, errors.Wrap(types.ErrInvalidKind, "resolving kind")
	}
	table := k.TableName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return 0, err
	}
	if e, ok := r.byTable[table]; ok {
		return e.ID, nil
	}

	// Another connection may have registered the kind after our load.
	var id int64
	err := r.conn.ScanOne("SELECT id FROM objtypes WHERE tablename = ?", []any{table}, &id)
	if err == nil {
		r.cacheLocked(types.KindEntry{ID: id, ClassName: k.Name, TableName: table})
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(err, "looking up kind %s", k.Name)
	}

	res, err := r.conn.Exec("INSERT INTO objtypes (classname, tablename) VALUES (?, ?)", k.Name, table)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "registering kind %s", k.Name), types.ErrStoreUnavailable)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "reading id of kind %s", k.Name), types.ErrStoreUnavailable)
	}

	r.cacheLocked(types.KindEntry{ID: id, ClassName: k.Name, TableName: table})
	r.log.Debugw("Registered kind", "kind", k.Name, "table", table, "kind_id", id)
	return id, nil
}

// Known returns the id of k if it is already registered. Unlike Resolve it
// never writes to objtypes.
func (r *Registry) Known(k *types.Kind) (int64, bool, error) {
	if k == nil || k.Name == "" {
		return 0, false, errors.Wrap(types.ErrInvalidKind, "looking up kind")
	}
	table := k.TableName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return 0, false, err
	}
	if e, ok := r.byTable[table]; ok {
		return e.ID, true, nil
	}

	var id int64
	err := r.conn.ScanOne("SELECT id FROM objtypes WHERE tablename = ?", []any{table}, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up kind %s", k.Name)
	}
	r.cacheLocked(types.KindEntry{ID: id, ClassName: k.Name, TableName: table})
	return id, true, nil
}

// Lookup returns the registry entry for id.
func (r *Registry) Lookup(id int64) (types.KindEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return types.KindEntry{}, err
	}
	if e, ok := r.byID[id]; ok {
		return e, nil
	}

	var e types.KindEntry
	err := r.conn.ScanOne("SELECT id, classname, tablename FROM objtypes WHERE id = ?", []any{id},
		&e.ID, &e.ClassName, &e.TableName)
	if errors.Is(err, sql.ErrNoRows) {
		return types.KindEntry{}, errors.Wrapf(types.ErrNotFound, "kind id %d", id)
	}
	if err != nil {
		return types.KindEntry{}, errors.Wrapf(err, "looking up kind id %d", id)
	}
	r.cacheLocked(e)
	return e, nil
}

// Entries lists every known kind ordered by id.
func (r *Registry) Entries() ([]types.KindEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	entries := make([]types.KindEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// loadLocked reads objtypes into the cache once. The caller must hold r.mu.
func (r *Registry) loadLocked() error {
	if r.loaded {
		return nil
	}
	rows, err := r.conn.Query("SELECT id, classname, tablename FROM objtypes")
	if err != nil {
		return errors.Wrap(err, "loading type registry")
	}
	defer rows.Close()

	loaded := make([]types.KindEntry, 0)
	for rows.Next() {
		var e types.KindEntry
		if err := rows.Scan(&e.ID, &e.ClassName, &e.TableName); err != nil {
			return errors.Wrap(err, "scanning type registry")
		}
		loaded = append(loaded, e)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(classify(err), "iterating type registry")
	}

	for _, e := range loaded {
		r.cacheLocked(e)
	}
	r.loaded = true
	return nil
}

func (r *Registry) cacheLocked(e types.KindEntry) {
	r.byTable[e.TableName] = e
	r.byID[e.ID] = e
}
