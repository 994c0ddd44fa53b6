package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.EntityStore = (*Store)(nil)

// Store implements generic CRUD over the per-kind tables. Kinds resolve
// through the registry before any link row is touched.
type Store struct {
	conn     *Conn
	registry *Registry
	schema   *Schema
	log      *zap.SugaredLogger
}

func newStore(conn *Conn, registry *Registry, schema *Schema, log *zap.SugaredLogger) *Store {
	return &Store{conn: conn, registry: registry, schema: schema, log: log}
}

// Create coerces and validates values, inserts a row, and returns its id.
// If the kind's table does not exist yet it is created and the insert
// retried once.
func (s *Store) Create(k *types.Kind, values map[string]any) (int64, error) {
	if err := k.Validate(); err != nil {
		return 0, err
	}
	cols, args, err := s.prepare(k, values, true)
	if err != nil {
		return 0, err
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(k.TableName()))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(k.TableName()), strings.Join(quoteIdents(cols), ", "), placeholders(len(cols)))
	}

	res, err := s.conn.Exec(query, args...)
	if errors.Is(err, types.ErrSchemaMissing) {
		if err := s.schema.EnsureTable(k); err != nil {
			return 0, errors.Wrapf(err, "creating table for %s", k.Name)
		}
		res, err = s.conn.Exec(query, args...)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "inserting %s", k.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrapf(err, "reading id of new %s", k.Name)
	}
	return id, nil
}

// Update overlays values on the stored record and writes the full row.
// Returns ErrNotFound if no record has that id. Last writer wins.
func (s *Store) Update(k *types.Kind, id int64, values map[string]any) error {
	current, err := s.Load(k, id)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(current.Fields)+len(values))
	for name, v := range current.Fields {
		merged[name] = v
	}
	for name, v := range values {
		merged[name] = v
	}

	cols, args, err := s.prepare(k, merged, false)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
	}
	args = append(args, id)

	res, err := s.conn.Exec(
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(k.TableName()), strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return errors.Wrapf(err, "updating %s %d", k.Name, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(types.ErrNotFound, "%s %d", k.Name, id)
	}
	return nil
}

// Save creates r when r.ID is zero and updates it otherwise. On create the
// new id is written back to r.
func (s *Store) Save(k *types.Kind, r *types.Record) error {
	if r == nil {
		return errors.Wrap(types.ErrValidation, "nil record")
	}
	if r.ID == 0 {
		id, err := s.Create(k, r.Fields)
		if err != nil {
			return err
		}
		r.ID = id
		r.Kind = k.Name
		return nil
	}
	return s.Update(k, r.ID, r.Fields)
}

// Load returns the record with the given id, restricted to fields when any
// are named.
func (s *Store) Load(k *types.Kind, id int64, fields ...string) (*types.Record, error) {
	if id <= 0 {
		return nil, errors.Wrapf(types.ErrUninitializedEntity, "loading %s", kindName(k))
	}
	recs, err := s.find(k, types.Query{Where: "id = ?", Args: []any{id}, Fields: fields})
	if errors.Is(err, types.ErrSchemaMissing) {
		return nil, errors.Wrapf(types.ErrNotFound, "%s %d", k.Name, id)
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.Wrapf(types.ErrNotFound, "%s %d", k.Name, id)
	}
	return recs[0], nil
}

// Find returns the records matching q. A missing table is created and
// reported as an empty result.
func (s *Store) Find(k *types.Kind, q types.Query) ([]*types.Record, error) {
	recs, err := s.find(k, q)
	if errors.Is(err, types.ErrSchemaMissing) {
		if err := s.schema.EnsureTable(k); err != nil {
			return nil, errors.Wrapf(err, "creating table for %s", k.Name)
		}
		return []*types.Record{}, nil
	}
	return recs, err
}

// Count returns the number of records matching where. A missing table is
// created and counts as zero.
func (s *Store) Count(k *types.Kind, where string, args ...any) (int, error) {
	if err := k.Validate(); err != nil {
		return 0, err
	}
	var n int
	err := s.conn.ScanOne("SELECT COUNT(*) FROM "+quoteIdent(k.TableName())+whereClause(where), args, &n)
	if errors.Is(err, types.ErrSchemaMissing) {
		if err := s.schema.EnsureTable(k); err != nil {
			return 0, errors.Wrapf(err, "creating table for %s", k.Name)
		}
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", k.Name)
	}
	return n, nil
}

// Delete removes a record and every link that references it, in one
// transaction. Deleting from a kind that was never registered does not
// register it.
func (s *Store) Delete(k *types.Kind, id int64) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if id <= 0 {
		return errors.Wrapf(types.ErrUninitializedEntity, "deleting %s", k.Name)
	}
	kindID, known, err := s.registry.Known(k)
	if err != nil {
		return err
	}

	err = s.conn.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(k.TableName())), id)
		if err != nil {
			return errors.Wrapf(err, "deleting %s %d", k.Name, id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Wrapf(types.ErrNotFound, "%s %d", k.Name, id)
		}
		if !known {
			return nil
		}
		_, err = deleteEndpointLinks(tx, kindID, id)
		return err
	})
	if errors.Is(err, types.ErrSchemaMissing) {
		return errors.Wrapf(types.ErrNotFound, "%s %d", k.Name, id)
	}
	return err
}

// DeleteWhere removes every record matching where, cascading to their
// links, and returns the number of records removed.
func (s *Store) DeleteWhere(k *types.Kind, where string, args ...any) (int, error) {
	if err := k.Validate(); err != nil {
		return 0, err
	}
	kindID, known, err := s.registry.Known(k)
	if err != nil {
		return 0, err
	}

	var removed int
	err = s.conn.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id FROM "+quoteIdent(k.TableName())+whereClause(where), args...)
		if err != nil {
			return errors.Wrapf(err, "selecting %s", k.Name)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(k.TableName())), id); err != nil {
				return errors.Wrapf(err, "deleting %s %d", k.Name, id)
			}
			if !known {
				continue
			}
			if _, err := deleteEndpointLinks(tx, kindID, id); err != nil {
				return err
			}
		}
		removed = len(ids)
		return nil
	})
	if errors.Is(err, types.ErrSchemaMissing) {
		return 0, nil
	}
	return removed, err
}

// MaxID returns the highest id in use, or zero for an empty kind.
func (s *Store) MaxID(k *types.Kind) (int64, error) {
	if err := k.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.conn.ScanOne("SELECT COALESCE(MAX(id), 0) FROM "+quoteIdent(k.TableName()), nil, &id)
	if errors.Is(err, types.ErrSchemaMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "reading max id of %s", k.Name)
	}
	return id, nil
}

// prepare runs the coercion and validation pipeline over values and returns
// the columns to write with their encoded arguments, in field order. Unset
// fields take their create defaults when create is true and are skipped
// otherwise.
func (s *Store) prepare(k *types.Kind, values map[string]any, create bool) ([]string, []any, error) {
	unknown := make([]string, 0)
	for name := range values {
		if _, ok := k.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, &types.ValidationError{Field: unknown[0], Reason: "unknown field of " + k.Name}
	}

	cols := make([]string, 0, len(k.Fields))
	args := make([]any, 0, len(k.Fields))
	for _, f := range k.Fields {
		v, present := values[f.Name]
		if !present {
			if !create {
				continue
			}
			v = createDefault(f)
		}

		cv, err := coerce(f, v)
		if err != nil {
			return nil, nil, &types.ValidationError{Field: f.Name, Reason: err.Error()}
		}
		if cv == nil && f.Constraints.Has(types.NotNull) {
			return nil, nil, &types.ValidationError{Field: f.Name, Reason: "cannot be null"}
		}
		if f.Validator != nil {
			if err := f.Validator.Validate(f.Name, cv); err != nil {
				return nil, nil, &types.ValidationError{Field: f.Name, Reason: err.Error()}
			}
		}
		col, err := toColumn(f, cv)
		if err != nil {
			return nil, nil, &types.ValidationError{Field: f.Name, Reason: err.Error()}
		}
		cols = append(cols, f.Name)
		args = append(args, col)
	}
	return cols, args, nil
}

// find runs the SELECT for q without any missing-table recovery.
func (s *Store) find(k *types.Kind, q types.Query) ([]*types.Record, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	fields, err := projection(k, q.Fields)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, "id")
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", strings.Join(cols, ", "), quoteIdent(k.TableName()), whereClause(q.Where))
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	switch {
	case q.Limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
		if q.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", q.Offset)
		}
	case q.Offset > 0:
		fmt.Fprintf(&b, " LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.conn.Query(b.String(), q.Args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", k.Name)
	}
	defer rows.Close()

	recs := make([]*types.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, k, fields)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(classify(err), "iterating %s", k.Name)
	}
	return recs, nil
}

// projection resolves the requested field names. Empty or "*" selects every
// declared field.
func projection(k *types.Kind, names []string) ([]types.Field, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == "*") {
		return k.Fields, nil
	}
	fields := make([]types.Field, 0, len(names))
	for _, name := range names {
		if name == "id" {
			continue
		}
		f, ok := k.Field(name)
		if !ok {
			return nil, &types.ValidationError{Field: name, Reason: "unknown field of " + k.Name}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// scanRecord hydrates one row of (id, fields...) into a Record.
func scanRecord(rows *sql.Rows, k *types.Kind, fields []types.Field) (*types.Record, error) {
	raw := make([]any, len(fields)+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrapf(err, "scanning %s", k.Name)
	}

	id, err := fromColumn(types.Field{Type: types.Integer}, raw[0])
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s id", k.Name)
	}
	rec := &types.Record{
		Kind:   k.Name,
		ID:     id.(int64),
		Fields: make(map[string]any, len(fields)),
	}
	for i, f := range fields {
		v, err := fromColumn(f, raw[i+1])
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s.%s of %d", k.Name, f.Name, rec.ID)
		}
		rec.Fields[f.Name] = v
	}
	return rec, nil
}

func whereClause(where string) string {
	if strings.TrimSpace(where) == "" {
		return ""
	}
	return " WHERE " + where
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func kindName(k *types.Kind) string {
	if k == nil {
		return "<nil kind>"
	}
	return k.Name
}
