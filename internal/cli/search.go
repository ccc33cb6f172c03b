package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/cases"
)

func NewSearchCmd(deps *Dependencies) *cobra.Command {
	var specialty string
	var tagFilter []string
	var favorites, asJSON bool

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search cases by text, specialty, tags or favorite",
		Long: "Text matches transcription, summary and specialty, ignoring case.\n" +
			"--tag matches cases sharing any of the given tags.",
		Example: "  casebook search \"chest pain\"\n" +
			"  casebook search --specialty Cardiology --favorites\n" +
			"  casebook search --tag sepsis,icu",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}

			q := cases.Query{
				Text:          strings.Join(args, " "),
				Tags:          tagFilter,
				FavoritesOnly: favorites,
			}
			if cmd.Flags().Changed("specialty") {
				q.Specialty = &specialty
			}

			recs, err := a.Cases.Search(cmd.Context(), q)
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

	cmd.Flags().StringVar(&specialty, "specialty", "", "Exact specialty")
	cmd.Flags().StringSliceVar(&tagFilter, "tag", nil, "Tags to match (any)")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "Only favorite cases")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
