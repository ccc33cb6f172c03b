package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/apperr"
)

func NewTagsCmd(deps *Dependencies) *cobra.Command {
	var suggest, removeFrom string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tags [tag...]",
		Short: "Show tag usage, suggest tags or remove tags from a case",
		Example: "  casebook tags\n" +
			"  casebook tags --suggest card\n" +
			"  casebook tags --remove 3f2a... cardiology icu",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("suggest") && removeFrom != "" {
				return apperr.Validation("--suggest and --remove cannot be combined")
			}
			a, err := deps.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			f := formatterFor(cmd)

			switch {
			case removeFrom != "":
				if len(args) == 0 {
					return apperr.Validation("name at least one tag to remove")
				}
				rec, err := a.Cases.RemoveTags(ctx, removeFrom, args)
				if err != nil {
					return err
				}
				if asJSON {
					return f.JSON(rec)
				}
				f.Success(fmt.Sprintf("Removed %s from %s", strings.Join(args, ", "), rec.ID))
				return nil

			case cmd.Flags().Changed("suggest"):
				got, err := a.Cases.SuggestTags(ctx, suggest, args)
				if err != nil {
					return err
				}
				if asJSON {
					return f.JSON(got)
				}
				if len(got) == 0 {
					f.Info("No matching tags")
					return nil
				}
				for _, t := range got {
					fmt.Fprintf(cmd.OutOrStdout(), "#%s\n", t)
				}
				return nil
			}

			counts, err := a.Cases.TagCounts(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return f.JSON(counts)
			}
			f.TagCounts(counts)
			return nil
		},
	}

	cmd.Flags().StringVar(&suggest, "suggest", "", "Suggest known tags containing this text; extra args are excluded")
	cmd.Flags().StringVar(&removeFrom, "remove", "", "Case id to remove the given tags from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
