package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/possum/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize possum storage",
		Long:  "Create the configuration and data directories, write a default config.yaml,\ncreate the base tables and a table for every declared kind.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(paths.KindsDir(a.configDir), 0o755); err != nil {
				return errors.Wrap(err, "creating kinds dir")
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			for _, k := range a.kinds.Kinds() {
				if err := db.Schema().EnsureTable(k); err != nil {
					return err
				}
				if _, err := db.Registry().Resolve(k); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "possum initialized successfully")
			fmt.Fprintln(out, "  config:", a.configDir)
			fmt.Fprintln(out, "  data:  ", db.Config().DataDir)
			fmt.Fprintln(out, "  kinds: ", len(a.kinds.Names()))
			return nil
		},
	}
}
