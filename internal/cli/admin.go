package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// linksTarget names the link graph in export and import.
const linksTarget = "links"

func newKindsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List declared kinds with their registry ids and fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.backend()
			if err != nil {
				return err
			}
			entries, err := db.Registry().Entries()
			if err != nil {
				return err
			}
			ids := make(map[string]int64, len(entries))
			for _, e := range entries {
				ids[e.TableName] = e.ID
			}

			type fieldOut struct {
				Name    string `json:"name"`
				Type    string `json:"type"`
				NotNull bool   `json:"not_null,omitempty"`
				Unique  bool   `json:"unique,omitempty"`
			}
			type kindOut struct {
				Name   string     `json:"name"`
				Table  string     `json:"table"`
				KindID int64      `json:"kind_id,omitempty"`
				Fields []fieldOut `json:"fields"`
			}
			out := make([]kindOut, 0, len(a.kinds.Names()))
			for _, k := range a.kinds.Kinds() {
				ko := kindOut{Name: k.Name, Table: k.TableName(), KindID: ids[k.TableName()]}
				for _, f := range k.Fields {
					ko.Fields = append(ko.Fields, fieldOut{
						Name:    f.Name,
						Type:    f.Type.String(),
						NotNull: f.Constraints.Has(types.NotNull),
						Unique:  f.Constraints.Has(types.Unique),
					})
				}
				out = append(out, ko)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [kind...]",
		Short: "Rebuild kind tables to match their descriptors",
		Long:  "Rebuild each named kind's table, or every declared kind's table, so its\ncolumns match the descriptor. Dropped columns lose their data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.kinds.Kinds()
			if len(args) > 0 {
				ks = ks[:0:0]
				for _, name := range args {
					k, err := a.kind(name)
					if err != nil {
						return err
					}
					ks = append(ks, k)
				}
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			for _, k := range ks {
				if err := db.Schema().MigrateTable(k); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrated", k.Name)
			}
			return nil
		},
	}
}

func newSettingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Read and write dbconfig settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.backend()
				if err != nil {
					return err
				}
				v, ok, err := db.Settings().Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.Wrapf(types.ErrNotFound, "setting %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.backend()
				if err != nil {
					return err
				}
				return db.Settings().Set(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Remove a setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.backend()
				if err != nil {
					return err
				}
				return db.Settings().Delete(args[0])
			},
		},
	)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <kind|links> [file]",
		Short: "Write a kind's records, or every link, as JSONL",
		Long:  "Write records or links one JSON object per line. The default file is\n<data-dir>/<table>.jsonl.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.backend()
			if err != nil {
				return err
			}
			store, graph := db.Exporter()

			table := args[0]
			var k *types.Kind
			if args[0] != linksTarget {
				if k, err = a.kind(args[0]); err != nil {
					return err
				}
				table = k.TableName()
			}
			path := filepath.Join(db.Config().DataDir, table+".jsonl")
			if len(args) == 2 {
				path = args[1]
			}

			var n int
			if k == nil {
				n, err = graph.Export(path)
			} else {
				n, err = store.ExportKind(k, path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d to %s\n", n, path)
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <kind|links> <file>",
		Short: "Load records or links written by export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.backend()
			if err != nil {
				return err
			}
			store, graph := db.Exporter()

			var n int
			if args[0] == linksTarget {
				n, err = graph.Import(args[1])
			} else {
				k, kerr := a.kind(args[0])
				if kerr != nil {
					return kerr
				}
				n, err = store.ImportKind(k, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d\n", n)
			return nil
		},
	}
}
