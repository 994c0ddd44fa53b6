package sqlite

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.LinkGraph = (*LinkGraph)(nil)

// Link row statements. The uniqueness key is the canonical endpoint pair
// plus the subtype, so links of different subtypes between the same two
// records coexist.
const (
	upsertLink = `INSERT INTO links (type1, id1, type2, id2, type, num, comment)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (type1, id1, type2, id2, type) DO UPDATE SET num = excluded.num, comment = excluded.comment`

	deleteOwnedLinks = `DELETE FROM links
WHERE type = ? AND ((type1 = ? AND id1 = ? AND type2 = ?) OR (type2 = ? AND id2 = ? AND type1 = ?))`

	// selectLinked reads both orientations of owner's links to one kind.
	// The second branch skips a self-link, which the first already returns.
	selectLinked = `SELECT id, num, comment FROM (
    SELECT id2 AS id, num, comment, rowid AS seq FROM links
    WHERE type1 = ? AND id1 = ? AND type2 = ? AND type = ?
    UNION ALL
    SELECT id1 AS id, num, comment, rowid AS seq FROM links
    WHERE type2 = ? AND id2 = ? AND type1 = ? AND type = ? AND NOT (type1 = type2 AND id1 = id2)
) ORDER BY num, seq`

	selectEndpointLinks = `SELECT type1, id1, type2, id2, type, num, comment FROM links
WHERE (type1 = ? AND id1 = ?) OR (type2 = ? AND id2 = ?)
ORDER BY type, num, rowid`
)

// LinkGraph stores polymorphic associations between (kind, id) pairs. It
// never holds entity objects, only their ids; Linked hydrates through the
// entity store.
type LinkGraph struct {
	conn     *Conn
	registry *Registry
	store    *Store
	log      *zap.SugaredLogger
}

func newLinkGraph(conn *Conn, registry *Registry, store *Store, log *zap.SugaredLogger) *LinkGraph {
	return &LinkGraph{conn: conn, registry: registry, store: store, log: log}
}

// endpoint is a resolved link endpoint.
type endpoint struct {
	kind int64
	id   int64
}

func (e endpoint) less(o endpoint) bool {
	if e.kind != o.kind {
		return e.kind < o.kind
	}
	return e.id < o.id
}

// canonical orders two endpoints into storage orientation.
func canonical(a, b endpoint) (endpoint, endpoint) {
	if b.less(a) {
		return b, a
	}
	return a, b
}

func (g *LinkGraph) resolve(r types.Ref) (endpoint, error) {
	if !r.Initialized() {
		return endpoint{}, errors.Wrapf(types.ErrUninitializedEntity, "link endpoint %s", kindName(r.Kind))
	}
	kindID, err := g.registry.Resolve(r.Kind)
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{kind: kindID, id: r.ID}, nil
}

// Link stores an association between a and b, or updates the rank and note
// of an existing one with the same subtype. Argument order does not matter.
func (g *LinkGraph) Link(a, b types.Ref, attrs types.LinkAttrs) error {
	ea, err := g.resolve(a)
	if err != nil {
		return err
	}
	eb, err := g.resolve(b)
	if err != nil {
		return err
	}
	c1, c2 := canonical(ea, eb)

	if _, err := g.conn.Exec(upsertLink,
		c1.kind, c1.id, c2.kind, c2.id, attrs.Subtype, attrs.Rank, nullString(attrs.Note),
	); err != nil {
		return errors.Wrapf(err, "linking %s %d to %s %d", a.Kind.Name, a.ID, b.Kind.Name, b.ID)
	}
	g.log.Debugw("Linked", "kind1", c1.kind, "id1", c1.id, "kind2", c2.kind, "id2", c2.id,
		"subtype", attrs.Subtype, "rank", attrs.Rank)
	return nil
}

// LinkOrderedSet replaces every subtype link from owner to the kind of
// members[0] with one link per member, ranked by position. All members must
// share one kind. An empty members slice leaves existing links untouched.
func (g *LinkGraph) LinkOrderedSet(owner types.Ref, members []types.Ref, subtype int, note string) error {
	if len(members) == 0 {
		return nil
	}
	eo, err := g.resolve(owner)
	if err != nil {
		return err
	}

	resolved := make([]endpoint, len(members))
	for i, m := range members {
		if m.Kind != nil && members[0].Kind != nil && m.Kind.TableName() != members[0].Kind.TableName() {
			return errors.Wrapf(types.ErrKindMismatch, "member %d is %s, not %s", i, m.Kind.Name, members[0].Kind.Name)
		}
		if resolved[i], err = g.resolve(m); err != nil {
			return errors.Wrapf(err, "member %d", i)
		}
	}
	memberKind := resolved[0].kind

	err = g.conn.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(deleteOwnedLinks,
			subtype, eo.kind, eo.id, memberKind, eo.kind, eo.id, memberKind,
		); err != nil {
			return errors.Wrap(err, "clearing ordered set")
		}
		for rank, em := range resolved {
			c1, c2 := canonical(eo, em)
			if _, err := tx.Exec(upsertLink,
				c1.kind, c1.id, c2.kind, c2.id, subtype, rank, nullString(note),
			); err != nil {
				return errors.Wrapf(err, "linking member %d", rank)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.log.Debugw("Replaced ordered set", "owner_kind", eo.kind, "owner_id", eo.id,
		"member_kind", memberKind, "subtype", subtype, "members", len(resolved))
	return nil
}

// Unlink removes the link between a and b. Subtype zero removes links of
// every subtype. Removing a link that does not exist is not an error.
func (g *LinkGraph) Unlink(a, b types.Ref, subtype int) error {
	ea, err := g.resolve(a)
	if err != nil {
		return err
	}
	eb, err := g.resolve(b)
	if err != nil {
		return err
	}
	c1, c2 := canonical(ea, eb)

	del := func(tx *sql.Tx, x, y endpoint) error {
		q := "DELETE FROM links WHERE type1 = ? AND id1 = ? AND type2 = ? AND id2 = ?"
		args := []any{x.kind, x.id, y.kind, y.id}
		if subtype != 0 {
			q += " AND type = ?"
			args = append(args, subtype)
		}
		_, err := tx.Exec(q, args...)
		return err
	}

	return g.conn.WithTx(func(tx *sql.Tx) error {
		if err := del(tx, c1, c2); err != nil {
			return errors.Wrap(err, "unlinking")
		}
		// A same-kind row may have been written in either orientation by
		// an older writer.
		if c1.kind == c2.kind && c1.id != c2.id {
			if err := del(tx, c2, c1); err != nil {
				return errors.Wrap(err, "unlinking swapped")
			}
		}
		return nil
	})
}

// Linked returns the records of kind other linked to owner under subtype,
// ordered by rank and then insertion. Links whose record cannot be loaded
// are skipped with a warning.
func (g *LinkGraph) Linked(owner types.Ref, other *types.Kind, subtype int, fields ...string) ([]types.LinkedRecord, error) {
	eo, err := g.resolve(owner)
	if err != nil {
		return nil, err
	}
	if err := other.Validate(); err != nil {
		return nil, err
	}
	otherID, err := g.registry.Resolve(other)
	if err != nil {
		return nil, err
	}

	rows, err := g.conn.Query(selectLinked,
		eo.kind, eo.id, otherID, subtype,
		eo.kind, eo.id, otherID, subtype,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying links")
	}
	var found []types.LinkedRecord
	for rows.Next() {
		var (
			lr   types.LinkedRecord
			note sql.NullString
		)
		if err := rows.Scan(&lr.ID, &lr.Rank, &note); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning link")
		}
		lr.Kind = other.Name
		lr.Note = note.String
		found = append(found, lr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterating links")
	}

	result := make([]types.LinkedRecord, 0, len(found))
	for _, lr := range found {
		rec, err := g.store.Load(other, lr.ID, fields...)
		if err != nil {
			if errors.Is(err, types.ErrStoreUnavailable) || errors.Is(err, types.ErrDetached) {
				return nil, err
			}
			g.log.Warnw("Skipping unloadable linked record",
				"owner_kind", owner.Kind.Name, "owner_id", owner.ID,
				"kind", other.Name, "id", lr.ID, "error", err)
			continue
		}
		lr.Record = rec
		result = append(result, lr)
	}
	return result, nil
}

// Links returns every link row with r as either endpoint.
func (g *LinkGraph) Links(r types.Ref) ([]types.Link, error) {
	e, err := g.resolve(r)
	if err != nil {
		return nil, err
	}
	rows, err := g.conn.Query(selectEndpointLinks, e.kind, e.id, e.kind, e.id)
	if err != nil {
		return nil, errors.Wrap(err, "querying links")
	}
	defer rows.Close()
	return scanLinks(rows)
}

// Tidy removes links whose endpoint record or kind no longer exists and
// returns the number of rows removed.
func (g *LinkGraph) Tidy() (int, error) {
	entries, err := g.registry.Entries()
	if err != nil {
		return 0, err
	}
	type target struct {
		id    int64
		table string
	}
	var live []target
	var gone []int64
	for _, e := range entries {
		ok, err := g.conn.TableExists(e.TableName)
		if err != nil {
			return 0, err
		}
		if ok {
			live = append(live, target{id: e.ID, table: e.TableName})
		} else {
			gone = append(gone, e.ID)
		}
	}

	var removed int64
	err = g.conn.WithTx(func(tx *sql.Tx) error {
		exec := func(q string, args ...any) error {
			res, err := tx.Exec(q, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
			return nil
		}

		if err := exec(`DELETE FROM links
WHERE type1 NOT IN (SELECT id FROM objtypes) OR type2 NOT IN (SELECT id FROM objtypes)`); err != nil {
			return errors.Wrap(err, "removing links of unknown kinds")
		}
		for _, id := range gone {
			if err := exec("DELETE FROM links WHERE type1 = ? OR type2 = ?", id, id); err != nil {
				return errors.Wrapf(err, "removing links of dropped kind %d", id)
			}
		}
		for _, t := range live {
			if err := exec("DELETE FROM links WHERE type1 = ? AND id1 NOT IN (SELECT id FROM "+quoteIdent(t.table)+")", t.id); err != nil {
				return errors.Wrapf(err, "tidying %s", t.table)
			}
			if err := exec("DELETE FROM links WHERE type2 = ? AND id2 NOT IN (SELECT id FROM "+quoteIdent(t.table)+")", t.id); err != nil {
				return errors.Wrapf(err, "tidying %s", t.table)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.log.Infow("Tidied links", "removed", removed)
	return int(removed), nil
}

// deleteEndpointLinks removes every link with (kind, id) as either endpoint.
func deleteEndpointLinks(tx *sql.Tx, kind, id int64) (int64, error) {
	res, err := tx.Exec(
		"DELETE FROM links WHERE (type1 = ? AND id1 = ?) OR (type2 = ? AND id2 = ?)",
		kind, id, kind, id,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "removing links of %d/%d", kind, id)
	}
	return res.RowsAffected()
}

func scanLinks(rows *sql.Rows) ([]types.Link, error) {
	links := make([]types.Link, 0)
	for rows.Next() {
		var (
			l    types.Link
			note sql.NullString
		)
		if err := rows.Scan(&l.Kind1, &l.ID1, &l.Kind2, &l.ID2, &l.Subtype, &l.Rank, &note); err != nil {
			return nil, errors.Wrap(err, "scanning link")
		}
		l.Note = note.String
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterating links")
	}
	return links, nil
}
