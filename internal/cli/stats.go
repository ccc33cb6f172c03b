package cli

import (
	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/analytics"
)

func NewStatsCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show case totals, specialties and progress toward the monthly goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}

			s, err := a.Cases.Analytics(cmd.Context())
			if err != nil {
				return err
			}

			f := formatterFor(cmd)
			if asJSON {
				return f.JSON(struct {
					analytics.Summary
					GoalProgress float64 `json:"goal_progress"`
				}{s, s.GoalProgress()})
			}
			f.Stats(s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
