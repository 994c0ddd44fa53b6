package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/possum/pkg/cursor"
	"github.com/mesh-intelligence/possum/pkg/types"
)

// parseAssignments turns field=value arguments into store values. Values of
// JSON fields must be valid JSON.
func parseAssignments(k *types.Kind, args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, usagef("invalid assignment %q (expected field=value)", arg)
		}
		if f, ok := k.Field(name); ok && f.Type == types.JSON {
			if !json.Valid([]byte(value)) {
				return nil, &types.ValidationError{Field: name, Reason: "not valid JSON"}
			}
			values[name] = json.RawMessage(value)
			continue
		}
		values[name] = value
	}
	return values, nil
}

// queryArgs converts --arg values to query parameters.
func queryArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		out[i] = s
	}
	return out
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <kind> [field=value...]",
		Short: "Create a record and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.kind(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(k, args[1:])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			id, err := db.Store().Create(k, values)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.kind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			rec, err := db.Store().Load(k, id, fields...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recordJSON(rec))
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to load (default: all)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var where string
	var whereArgs []string
	cmd := &cobra.Command{
		Use:   "delete <kind> [id]",
		Short: "Delete a record, or every record matching --where, with its links",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.kind(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 && where != "" {
				return usagef("give an id or --where, not both")
			}
			if len(args) == 1 && where == "" {
				return usagef("delete needs an id or --where")
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			if where != "" {
				n, err := db.Store().DeleteWhere(k, where, queryArgs(whereArgs)...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return nil
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			if err := db.Store().Delete(k, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted 1")
			return nil
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "SQL predicate selecting the records to delete")
	cmd.Flags().StringArrayVar(&whereArgs, "arg", nil, "positional parameter for --where (repeatable)")
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var (
		where     string
		whereArgs []string
		order     string
		limit     int
		offset    int
		fields    []string
		random    bool
	)
	cmd := &cobra.Command{
		Use:   "find <kind>",
		Short: "Print records of a kind",
		Long:  "Print records matching --where in --order. With --random the records\nare read one at a time through a shuffled cursor.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.kind(args[0])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}

			if !random {
				recs, err := db.Store().Find(k, types.Query{
					Where:   where,
					Args:    queryArgs(whereArgs),
					OrderBy: order,
					Limit:   limit,
					Offset:  offset,
					Fields:  fields,
				})
				if err != nil {
					return err
				}
				return writeRecords(cmd.OutOrStdout(), recs)
			}

			c := db.Cursor(k, cursor.WithFields(fields...)).
				Filter(where, queryArgs(whereArgs)...).
				OrderBy(order)
			if err := c.EnableRandom(); err != nil {
				return err
			}
			recs := make([]*types.Record, 0)
			for rec, err := range c.All() {
				if err != nil {
					return err
				}
				recs = append(recs, rec)
				if limit > 0 && len(recs) == limit {
					break
				}
			}
			return writeRecords(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "SQL predicate, with ? placeholders")
	cmd.Flags().StringArrayVar(&whereArgs, "arg", nil, "positional parameter for --where (repeatable)")
	cmd.Flags().StringVar(&order, "order", "", "SQL ORDER BY clause")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to load (default: all)")
	cmd.Flags().BoolVar(&random, "random", false, "shuffle the result")
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	var where string
	var whereArgs []string
	cmd := &cobra.Command{
		Use:   "count <kind>",
		Short: "Print the number of records matching --where",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.kind(args[0])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			n, err := db.Store().Count(k, where, queryArgs(whereArgs)...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "SQL predicate, with ? placeholders")
	cmd.Flags().StringArrayVar(&whereArgs, "arg", nil, "positional parameter for --where (repeatable)")
	return cmd
}
