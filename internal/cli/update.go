package cli

import (
	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/cases"
)

func NewUpdateCmd(deps *Dependencies) *cobra.Command {
	var (
		transcription, specialty, caseType, complexity string
		ageRange, gender, summary, notes               string
		findings, differential, learning, tagList      []string
		asJSON                                         bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a case",
		Long:  "Only the flags given are changed. List flags replace the whole list.",
		Example: "  casebook update 3f2a... --specialty Neurology --complexity High\n" +
			"  casebook update 3f2a... --tags stroke,tpa --notes \"\"",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var p cases.Patch
			str := func(name string, v *string) *string {
				if flags.Changed(name) {
					return v
				}
				return nil
			}
			list := func(name string, v *[]string) *[]string {
				if flags.Changed(name) {
					return v
				}
				return nil
			}

			p.Transcription = str("transcription", &transcription)
			p.Specialty = str("specialty", &specialty)
			p.CaseType = str("case-type", &caseType)
			p.Complexity = str("complexity", &complexity)
			p.Summary = str("summary", &summary)
			p.Notes = str("notes", &notes)
			p.KeyFindings = list("finding", &findings)
			p.DifferentialDiagnosis = list("differential", &differential)
			p.LearningPoints = list("learning-point", &learning)
			p.Tags = list("tags", &tagList)
			if flags.Changed("age-range") || flags.Changed("gender") {
				p.Demographics = &cases.DemographicsPatch{
					AgeRange: str("age-range", &ageRange),
					Gender:   str("gender", &gender),
				}
			}
			if p == (cases.Patch{}) {
				return apperr.Validation("nothing to update. See casebook update --help")
			}

			a, err := deps.App()
			if err != nil {
				return err
			}
			rec, err := a.Cases.Update(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}

			f := formatterFor(cmd)
			if asJSON {
				return f.JSON(rec)
			}
			f.Success("Updated " + rec.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&transcription, "transcription", "", "Transcription text")
	flags.StringVar(&specialty, "specialty", "", "Specialty")
	flags.StringVar(&caseType, "case-type", "", "Case type")
	flags.StringVar(&complexity, "complexity", "", "Complexity")
	flags.StringVar(&ageRange, "age-range", "", "Patient age range")
	flags.StringVar(&gender, "gender", "", "Patient gender")
	flags.StringVar(&summary, "summary", "", "Summary")
	flags.StringVar(&notes, "notes", "", "Notes")
	flags.StringArrayVar(&findings, "finding", nil, "Key finding (repeatable)")
	flags.StringArrayVar(&differential, "differential", nil, "Differential diagnosis (repeatable)")
	flags.StringArrayVar(&learning, "learning-point", nil, "Learning point (repeatable)")
	flags.StringSliceVar(&tagList, "tags", nil, "Tags (comma-separated)")
	flags.BoolVar(&asJSON, "json", false, "Print the updated case as JSON")

	return cmd
}
