package sqlite

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning %s", path)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()

	fail := func(err error, msg string) error {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, msg)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(err, "writing record")
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(err, "writing newline")
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err, "flushing buffer")
	}
	if err := tmp.Sync(); err != nil {
		return fail(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}

// ExportKind writes every record of k to path, one JSON object per line
// holding "id" and the declared fields. Returns the number of records.
func (s *Store) ExportKind(k *types.Kind, path string) (int, error) {
	recs, err := s.Find(k, types.Query{OrderBy: "id"})
	if err != nil {
		return 0, err
	}
	lines := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		obj := make(map[string]any, len(r.Fields)+1)
		for name, v := range r.Fields {
			obj[name] = v
		}
		obj["id"] = r.ID
		b, err := json.Marshal(obj)
		if err != nil {
			return 0, errors.Wrapf(err, "encoding %s %d", k.Name, r.ID)
		}
		lines = append(lines, b)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	s.log.Infow("Exported kind", "kind", k.Name, "path", path, "records", len(lines))
	return len(lines), nil
}

// ImportKind loads records written by ExportKind into k's table, keeping
// their ids and replacing rows that already exist. Every record passes the
// same coercion and validation as Create; the import is all or nothing.
func (s *Store) ImportKind(k *types.Kind, path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}
	if err := s.schema.EnsureTable(k); err != nil {
		return 0, err
	}

	type row struct {
		id   int64
		cols []string
		args []any
	}
	rows := make([]row, 0, len(lines))
	for i, line := range lines {
		obj, err := decodeObject(line)
		if err != nil {
			return 0, errors.Wrapf(err, "line %d", i+1)
		}
		var id int64
		if raw, ok := obj["id"]; ok {
			v, err := coerce(types.Field{Type: types.Integer}, raw)
			if err != nil || v == nil {
				return 0, &types.ValidationError{Field: "id", Reason: fmt.Sprintf("line %d: not an integer", i+1)}
			}
			id = v.(int64)
			delete(obj, "id")
		}
		cols, args, err := s.prepare(k, obj, true)
		if err != nil {
			return 0, errors.Wrapf(err, "line %d", i+1)
		}
		rows = append(rows, row{id: id, cols: cols, args: args})
	}

	err = s.conn.WithTx(func(tx *sql.Tx) error {
		for _, r := range rows {
			cols, args := r.cols, r.args
			if r.id > 0 {
				cols = append([]string{"id"}, cols...)
				args = append([]any{r.id}, args...)
			}
			var q string
			if len(cols) == 0 {
				q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(k.TableName()))
			} else {
				q = fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
					quoteIdent(k.TableName()), strings.Join(quoteIdents(cols), ", "), placeholders(len(cols)))
			}
			if _, err := tx.Exec(q, args...); err != nil {
				return errors.Wrapf(err, "importing %s %d", k.Name, r.id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Infow("Imported kind", "kind", k.Name, "path", path, "records", len(rows))
	return len(rows), nil
}

// linkLine is the JSONL form of a link. Endpoint kinds are written by class
// and table name so a file can be loaded into a store that assigned
// different kind ids.
type linkLine struct {
	Class1  string `json:"class1"`
	Table1  string `json:"table1"`
	ID1     int64  `json:"id1"`
	Class2  string `json:"class2"`
	Table2  string `json:"table2"`
	ID2     int64  `json:"id2"`
	Subtype int    `json:"subtype"`
	Rank    int    `json:"rank"`
	Note    string `json:"note,omitempty"`
}

// Export writes every link row to path. Returns the number of links.
func (g *LinkGraph) Export(path string) (int, error) {
	entries, err := g.registry.Entries()
	if err != nil {
		return 0, err
	}
	byID := make(map[int64]types.KindEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	rows, err := g.conn.Query("SELECT type1, id1, type2, id2, type, num, comment FROM links ORDER BY rowid")
	if err != nil {
		return 0, errors.Wrap(err, "querying links")
	}
	links, err := scanLinks(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	lines := make([]json.RawMessage, 0, len(links))
	for _, l := range links {
		e1, ok1 := byID[l.Kind1]
		e2, ok2 := byID[l.Kind2]
		if !ok1 || !ok2 {
			g.log.Warnw("Skipping link of unregistered kind", "kind1", l.Kind1, "kind2", l.Kind2)
			continue
		}
		b, err := json.Marshal(linkLine{
			Class1: e1.ClassName, Table1: e1.TableName, ID1: l.ID1,
			Class2: e2.ClassName, Table2: e2.TableName, ID2: l.ID2,
			Subtype: l.Subtype, Rank: l.Rank, Note: l.Note,
		})
		if err != nil {
			return 0, errors.Wrap(err, "encoding link")
		}
		lines = append(lines, b)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	g.log.Infow("Exported links", "path", path, "links", len(lines))
	return len(lines), nil
}

// Import loads links written by Export, registering any kind it has not
// seen. Existing links with the same endpoints and subtype are updated.
func (g *LinkGraph) Import(path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}
	type pending struct {
		a, b  endpoint
		attrs types.LinkAttrs
	}
	all := make([]pending, 0, len(lines))
	for i, line := range lines {
		var ll linkLine
		if err := json.Unmarshal(line, &ll); err != nil {
			return 0, errors.Wrapf(err, "line %d", i+1)
		}
		a, err := g.resolve(types.Ref{Kind: &types.Kind{Name: ll.Class1, Table: ll.Table1}, ID: ll.ID1})
		if err != nil {
			return 0, errors.Wrapf(err, "line %d", i+1)
		}
		b, err := g.resolve(types.Ref{Kind: &types.Kind{Name: ll.Class2, Table: ll.Table2}, ID: ll.ID2})
		if err != nil {
			return 0, errors.Wrapf(err, "line %d", i+1)
		}
		all = append(all, pending{a: a, b: b, attrs: types.LinkAttrs{Subtype: ll.Subtype, Rank: ll.Rank, Note: ll.Note}})
	}

	err = g.conn.WithTx(func(tx *sql.Tx) error {
		for _, p := range all {
			c1, c2 := canonical(p.a, p.b)
			if _, err := tx.Exec(upsertLink,
				c1.kind, c1.id, c2.kind, c2.id, p.attrs.Subtype, p.attrs.Rank, nullString(p.attrs.Note),
			); err != nil {
				return errors.Wrap(err, "importing link")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.log.Infow("Imported links", "path", path, "links", len(all))
	return len(all), nil
}

// decodeObject decodes one JSONL line, keeping numbers as json.Number so
// integer ids survive.
func decodeObject(line json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}
