package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/config"
)

// check is one doctor line.
type check struct {
	name   string
	ok     bool
	detail string
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(cmd)
			cfg := deps.Config

			if path := config.FilePath(); fileExists(path) {
				f.SetupCheck("Config", true, path)
			} else {
				f.SetupCheck("Config", true, "defaults ("+path+" not found)")
			}

			a, err := deps.App()
			if err != nil {
				f.SetupCheck("Database", false, err.Error())
				f.Warning("\nSome prerequisites are missing.")
				return nil
			}
			f.SetupCheck("Database", true, cfg.DBPath)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			// Checks run concurrently; results print in a fixed order.
			results := make([]check, 3)
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				results[0] = captureCheck(ctx, cfg.Capture)
				return nil
			})
			g.Go(func() error {
				results[1] = serviceCheck("Whisper", cfg.Whisper.URL, a.Whisper.Ping(ctx))
				return nil
			})
			g.Go(func() error {
				results[2] = serviceCheck("Ollama", cfg.Ollama.URL+" ("+cfg.Ollama.Model+")", a.Ollama.Ping(ctx))
				return nil
			})
			_ = g.Wait()

			ok := true
			for _, c := range results {
				f.SetupCheck(c.name, c.ok, c.detail)
				ok = ok && c.ok
			}

			if cfg.KeepAudio {
				f.SetupCheck("Audio directory", true, cfg.AudioDir)
			} else {
				f.SetupCheck("Audio directory", true, "recordings are not kept")
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func captureCheck(ctx context.Context, c config.CaptureConfig) check {
	if c.Backend == "daemon" {
		devices, err := audio.DaemonDevice{SocketPath: c.SocketPath}.Devices(ctx)
		if err != nil {
			return check{"Capture daemon", false, fmt.Sprintf("%s (%v)", c.SocketPath, err)}
		}
		return check{"Capture daemon", true, fmt.Sprintf("%d input devices: %s", len(devices), strings.Join(devices, ", "))}
	}
	if err := (audio.FFmpegDevice{Binary: c.FFmpegPath}).CheckFFmpeg(); err != nil {
		return check{"ffmpeg", false, err.Error()}
	}
	return check{"ffmpeg", true, "installed"}
}

func serviceCheck(name, target string, err error) check {
	if err != nil {
		return check{name, false, fmt.Sprintf("%s unreachable (%v)", target, err)}
	}
	return check{name, true, target}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
