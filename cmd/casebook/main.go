package main

import (
	"fmt"
	"os"

	"github.com/elparko/CaseTracker/internal/cli"
	"github.com/elparko/CaseTracker/internal/config"
	"github.com/elparko/CaseTracker/internal/logging"
	"github.com/elparko/CaseTracker/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	deps := &cli.Dependencies{
		Config: cfg,
		Log:    log,
	}
	defer deps.Close()

	return cli.NewRootCmd(deps).Execute()
}
