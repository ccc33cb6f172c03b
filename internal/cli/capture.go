package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elparko/CaseTracker/internal/app"
	"github.com/elparko/CaseTracker/internal/logging"
)

func NewCaptureCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Open the interactive capture screen",
		Long: "Record a case, review the transcription, tag it and save the analysis.\n" +
			"Logs go to a file while the screen is open.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Config.Log.File == "" && deps.app == nil {
				log, err := logging.New(logging.Options{
					Level:  deps.Config.Log.Level,
					Format: deps.Config.Log.Format,
					File:   logging.DefaultFile(),
				})
				if err != nil {
					return err
				}
				defer log.Sync()
				deps.Log = log
			}

			a, err := deps.App()
			if err != nil {
				return err
			}

			model := app.New(app.Deps{
				Cases:      a.Cases,
				NewSession: a.NewSession,
				Meter:      a.Capture,
				Device:     a.Device,
			})
			opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(cmd.Context())}
			if deps.Stdin != nil {
				opts = append(opts, tea.WithInput(deps.Stdin), tea.WithOutput(cmd.OutOrStdout()))
			}
			_, err = tea.NewProgram(model, opts...).Run()
			releaseCapture(a, deps.logger())
			return err
		},
	}
}

// releaseCapture frees the input device if the screen closed mid-recording
// without discarding its session.
func releaseCapture(a *App, log *zap.Logger) {
	if !a.Capture.Active() {
		return
	}
	log.Warn("capture still active after exit, releasing device")
	if err := a.Capture.Discard(); err != nil {
		log.Warn("release capture device", zap.Error(err))
	}
}
