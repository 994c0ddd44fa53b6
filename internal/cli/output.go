package cli

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// recordJSON flattens a record into one object with its id.
func recordJSON(r *types.Record) map[string]any {
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj["id"] = r.ID
	obj["kind"] = r.Kind
	return obj
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func writeRecords(w io.Writer, recs []*types.Record) error {
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		out[i] = recordJSON(r)
	}
	return writeJSON(w, out)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("invalid id %q", s)
	}
	return id, nil
}
