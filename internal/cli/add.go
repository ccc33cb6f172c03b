package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/output"
	"github.com/elparko/CaseTracker/internal/workflow"
)

type addOptions struct {
	text   string
	file   string
	tags   []string
	notes  string
	asJSON bool
}

func NewAddCmd(deps *Dependencies) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a case from text or an audio file",
		Long: "Add a case without live capture. The text comes from --text, from an audio\n" +
			"file given with --file (transcribed first) or from standard input.",
		Example: "  casebook add --text \"45 yo with crushing chest pain...\" --tags cardiology\n" +
			"  casebook add --file rounds.m4a --notes \"ask attending about troponin\"\n" +
			"  pbpaste | casebook add",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}
			f := formatterFor(cmd)
			if opts.asJSON {
				f = output.NewFormatter(io.Discard)
			}

			rec, err := addCase(cmd, deps, a.NewSession(), opts, f)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return formatterFor(cmd).JSON(rec)
			}
			f.CaseSaved(rec)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "Case text")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Audio file to transcribe (wav, mp3, m4a, ...)")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Tags to attach (comma-separated)")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "Free-text notes")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the saved case as JSON")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

// addCase drives one session from input to a saved case. The session is
// discarded on any failure.
func addCase(cmd *cobra.Command, deps *Dependencies, sess *workflow.Session, opts addOptions, f *output.Formatter) (rec cases.Record, err error) {
	ctx := cmd.Context()
	defer func() {
		if err != nil {
			_ = sess.Discard()
		}
	}()

	if opts.file != "" {
		p, err := audio.Load(opts.file)
		if err != nil {
			return cases.Record{}, err
		}
		f.AudioLoaded(opts.file, p.Duration)
		if err := sess.Import(p); err != nil {
			return cases.Record{}, err
		}
		f.Transcribing()
		text, err := sess.Transcribe(ctx)
		if err != nil {
			return cases.Record{}, err
		}
		if strings.TrimSpace(text) == "" {
			return cases.Record{}, apperr.Validation("no speech recognized in " + opts.file)
		}
	} else {
		text := opts.text
		if text == "" {
			b, err := io.ReadAll(deps.stdin())
			if err != nil {
				return cases.Record{}, err
			}
			text = string(b)
		}
		if strings.TrimSpace(text) == "" {
			return cases.Record{}, apperr.Validation("case text is empty. Use --text, --file or pipe text on stdin")
		}
		if err := sess.ManualEntry(); err != nil {
			return cases.Record{}, err
		}
		if err := sess.Edit(strings.TrimSpace(text)); err != nil {
			return cases.Record{}, err
		}
	}

	if len(opts.tags) > 0 {
		if err := sess.AddTags(opts.tags...); err != nil {
			return cases.Record{}, err
		}
	}
	if opts.notes != "" {
		if err := sess.SetNotes(opts.notes); err != nil {
			return cases.Record{}, err
		}
	}

	f.Analyzing()
	return sess.Analyze(ctx)
}
