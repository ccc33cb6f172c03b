package cli

import (
	"github.com/spf13/cobra"
)

func NewListCmd(deps *Dependencies) *cobra.Command {
	var skip, limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}

			recs, err := a.Cases.List(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}

			f := formatterFor(cmd)
			if asJSON {
				return f.JSON(recs)
			}
			f.CaseList(recs)
			return nil
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "Number of cases to skip")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of cases")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func NewShowCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}

			rec, err := a.Cases.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			f := formatterFor(cmd)
			if asJSON {
				return f.JSON(rec)
			}
			f.CaseDetail(rec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
