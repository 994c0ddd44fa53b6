package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// refArgs parses a <kind> <id> argument pair.
func (a *app) refArgs(kind, id string) (types.Ref, error) {
	k, err := a.kind(kind)
	if err != nil {
		return types.Ref{}, err
	}
	n, err := parseID(id)
	if err != nil {
		return types.Ref{}, err
	}
	return k.Ref(n), nil
}

func newLinkCmd(a *app) *cobra.Command {
	var attrs types.LinkAttrs
	var ordered bool
	cmd := &cobra.Command{
		Use:   "link <kind> <id> <other-kind> <other-id>...",
		Short: "Link two records, or replace an ordered set with --ordered",
		Long: `Link stores an association between two records. With --ordered every
other-id after the kind becomes a member of an ordered set owned by the first
record, replacing the previous members of that subtype.`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.refArgs(args[0], args[1])
			if err != nil {
				return err
			}
			other, err := a.kind(args[2])
			if err != nil {
				return err
			}
			ids := args[3:]
			if !ordered && len(ids) > 1 {
				return usagef("several ids need --ordered")
			}
			db, err := a.backend()
			if err != nil {
				return err
			}

			refs := make([]types.Ref, len(ids))
			for i, s := range ids {
				if refs[i], err = a.refArgs(other.Name, s); err != nil {
					return err
				}
			}
			if ordered {
				if err := db.Links().LinkOrderedSet(owner, refs, attrs.Subtype, attrs.Note); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "linked %d\n", len(refs))
				return nil
			}
			if err := db.Links().Link(owner, refs[0], attrs); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "linked 1")
			return nil
		},
	}
	cmd.Flags().IntVar(&attrs.Subtype, "subtype", 0, "link subtype")
	cmd.Flags().IntVar(&attrs.Rank, "rank", 0, "link rank")
	cmd.Flags().StringVar(&attrs.Note, "note", "", "free-text annotation")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "replace the ordered set of other-kind members with the ids")
	return cmd
}

func newUnlinkCmd(a *app) *cobra.Command {
	var subtype int
	cmd := &cobra.Command{
		Use:   "unlink <kind> <id> <other-kind> <other-id>",
		Short: "Remove the link between two records",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := a.refArgs(args[0], args[1])
			if err != nil {
				return err
			}
			y, err := a.refArgs(args[2], args[3])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			return db.Links().Unlink(x, y, subtype)
		},
	}
	cmd.Flags().IntVar(&subtype, "subtype", 0, "link subtype (0 = every subtype)")
	return cmd
}

func newLinkedCmd(a *app) *cobra.Command {
	var subtype int
	var fields []string
	cmd := &cobra.Command{
		Use:   "linked <kind> <id> <other-kind>",
		Short: "Print the records of other-kind linked to a record, in rank order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.refArgs(args[0], args[1])
			if err != nil {
				return err
			}
			other, err := a.kind(args[2])
			if err != nil {
				return err
			}
			db, err := a.backend()
			if err != nil {
				return err
			}
			linked, err := db.Links().Linked(owner, other, subtype, fields...)
			if err != nil {
				return err
			}
			out := make([]map[string]any, len(linked))
			for i, lr := range linked {
				obj := recordJSON(lr.Record)
				obj["rank"] = lr.Rank
				if lr.Note != "" {
					obj["note"] = lr.Note
				}
				out[i] = obj
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&subtype, "subtype", 0, "link subtype")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to load (default: all)")
	return cmd
}

func newTidyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tidy",
		Short: "Remove links whose records no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.backend()
			if err != nil {
				return err
			}
			n, err := db.Links().Tidy()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
			return nil
		},
	}
}
