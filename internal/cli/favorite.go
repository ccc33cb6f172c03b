package cli

import (
	"github.com/spf13/cobra"
)

func NewFavoriteCmd(deps *Dependencies) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Mark a case as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}

			rec, err := a.Cases.SetFavorite(cmd.Context(), args[0], !off)
			if err != nil {
				return err
			}

			f := formatterFor(cmd)
			if rec.IsFavorite {
				f.Success("★ " + rec.ID + " is a favorite")
			} else {
				f.Success(rec.ID + " is no longer a favorite")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "Remove the favorite mark")

	return cmd
}
