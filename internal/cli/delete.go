package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewDeleteCmd(deps *Dependencies) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a case and its recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			f := formatterFor(cmd)

			rec, err := a.Cases.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if !force {
				label := rec.Summary
				if label == "" {
					label = rec.Specialty
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %s (%s)? [y/N] ", rec.ID, orNone(label))
				answer, _ := bufio.NewReader(deps.stdin()).ReadString('\n')
				if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
					f.Info("Kept " + rec.ID)
					return nil
				}
			}

			if err := a.Cases.Delete(ctx, rec.ID); err != nil {
				return err
			}
			f.Success("Deleted " + rec.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "y", false, "Do not ask for confirmation")

	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "no summary"
	}
	if r := []rune(s); len(r) > 60 {
		return string(r[:59]) + "…"
	}
	return s
}
