// Package cli is the casebook command tree.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elparko/CaseTracker/internal/config"
	"github.com/elparko/CaseTracker/internal/output"
	"github.com/elparko/CaseTracker/internal/version"
)

type Dependencies struct {
	Config *config.Config
	Log    *zap.Logger
	// Open builds the application on first use. Commands that only read the
	// config never open the database.
	Open func() (*App, error)
	// Stdin feeds prompts and piped input. Defaults to os.Stdin.
	Stdin io.Reader

	app *App
}

// App returns the application, opening it if needed.
func (d *Dependencies) App() (*App, error) {
	if d.app != nil {
		return d.app, nil
	}
	open := d.Open
	if open == nil {
		open = func() (*App, error) { return NewApp(d.Config, d.Log) }
	}
	a, err := open()
	if err != nil {
		return nil, err
	}
	d.app = a
	return a, nil
}

// Close releases the application if it was opened.
func (d *Dependencies) Close() error {
	if d.app == nil {
		return nil
	}
	err := d.app.Close()
	d.app = nil
	return err
}

func (d *Dependencies) stdin() io.Reader {
	if d.Stdin == nil {
		return os.Stdin
	}
	return d.Stdin
}

func (d *Dependencies) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "casebook",
		Short: "Capture, analyze and review clinical cases",
		Long: "A local tool that records a spoken clinical case, transcribes it with Whisper,\n" +
			"extracts structured fields with a local LLM and keeps a searchable case log.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return deps.Close()
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewCaptureCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewMCPCmd(deps))
	rootCmd.AddCommand(NewAddCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewShowCmd(deps))
	rootCmd.AddCommand(NewSearchCmd(deps))
	rootCmd.AddCommand(NewUpdateCmd(deps))
	rootCmd.AddCommand(NewFavoriteCmd(deps))
	rootCmd.AddCommand(NewDeleteCmd(deps))
	rootCmd.AddCommand(NewTagsCmd(deps))
	rootCmd.AddCommand(NewStatsCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func formatterFor(cmd *cobra.Command) *output.Formatter {
	return output.NewFormatter(cmd.OutOrStdout())
}
