package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elparko/CaseTracker/internal/server"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = deps.Config.HTTP.Addr
			}
			log := deps.logger()

			// Sessions created over HTTP only import uploaded audio.
			wf := a.Workflow
			wf.Recorder = nil

			checks := map[string]server.Pinger{"whisper": a.Whisper, "ollama": a.Ollama}
			srv := server.New(a.Cases, server.Options{
				AllowedOrigins: deps.Config.HTTP.AllowedOrigins,
				Workflow:       wf,
				Checks:         checks,
				Metrics:        a.Metrics,
				Log:            log.Named("http"),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			formatterFor(cmd).Info(fmt.Sprintf("Listening on http://%s", addr))

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(ctx, addr)
			})
			g.Go(func() error {
				warnUnavailable(ctx, checks, log)
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}

// warnUnavailable warns once at startup about backing services that are down.
// The API still serves stored cases without them.
func warnUnavailable(ctx context.Context, checks map[string]server.Pinger, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for name, p := range checks {
		if err := p.Ping(ctx); err != nil {
			log.Warn("backing service unavailable", zap.String("service", name), zap.Error(err))
		}
	}
}
