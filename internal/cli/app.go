package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/casebook"
	"github.com/elparko/CaseTracker/internal/config"
	"github.com/elparko/CaseTracker/internal/db"
	"github.com/elparko/CaseTracker/internal/gateway"
	"github.com/elparko/CaseTracker/internal/metrics"
	"github.com/elparko/CaseTracker/internal/workflow"
)

// App holds the wired components every command works with.
type App struct {
	Store    *db.Store
	Cases    *casebook.Service
	Files    audio.FileStore
	Capture  *audio.Capture
	Whisper  *gateway.WhisperClient
	Ollama   *gateway.OllamaClient
	Metrics  *metrics.Collector
	Workflow workflow.Deps
	// Device describes the capture input for display.
	Device string
}

// NewApp opens the database and wires the services described by cfg.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := db.Open(cfg.DBPath, db.WithLogger(log.Named("db")))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	collector := metrics.NewCollector("casebook")
	files := audio.FileStore{Dir: cfg.AudioDir}
	svc := casebook.New(store, files,
		casebook.WithPolicy(cfg.Analytics),
		casebook.WithObserver(collector),
		casebook.WithLogger(log.Named("cases")))

	whisper := &gateway.WhisperClient{
		BaseURL:  cfg.Whisper.URL,
		Model:    cfg.Whisper.Model,
		Language: cfg.Whisper.Language,
		Timeout:  cfg.WhisperTimeout(),
		Log:      log.Named("whisper"),
	}
	ollama := &gateway.OllamaClient{
		BaseURL: cfg.Ollama.URL,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.OllamaTimeout(),
		Log:     log.Named("ollama"),
	}

	breakerCfg := cfg.GatewayBreaker()
	transcriber := gateway.GuardTranscriber(
		gateway.ObserveTranscriber(whisper, collector),
		gateway.NewBreaker("whisper", breakerCfg, log))
	analyzer := gateway.GuardAnalyzer(
		gateway.ObserveAnalyzer(ollama, collector),
		gateway.NewBreaker("ollama", breakerCfg, log))

	device, label := captureDevice(cfg.Capture)
	capture := audio.NewCapture(device, log.Named("capture"))

	deps := workflow.Deps{
		Recorder:    capture,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Cases:       svc,
		Observer:    collector,
		Log:         log.Named("workflow"),
	}
	if cfg.KeepAudio {
		deps.Audio = files
	}

	return &App{
		Store:    store,
		Cases:    svc,
		Files:    files,
		Capture:  capture,
		Whisper:  whisper,
		Ollama:   ollama,
		Metrics:  collector,
		Workflow: deps,
		Device:   label,
	}, nil
}

// captureDevice builds the configured recording backend and a label for it.
func captureDevice(c config.CaptureConfig) (audio.Device, string) {
	if c.Backend == "daemon" {
		label := c.Device
		if label == "" {
			label = "daemon default input"
		}
		return audio.DaemonDevice{SocketPath: c.SocketPath, Device: c.Device}, label
	}

	format, input := audio.DefaultInput()
	if c.InputFormat != "" {
		format = c.InputFormat
	}
	if c.Input != "" {
		input = c.Input
	}
	dev := audio.FFmpegDevice{
		Binary:      c.FFmpegPath,
		InputFormat: c.InputFormat,
		Input:       c.Input,
	}
	return dev, fmt.Sprintf("%s %s", format, input)
}

// NewSession starts a capture session over the app's services.
func (a *App) NewSession() *workflow.Session {
	return workflow.NewSession(a.Workflow)
}

// Close closes the database.
func (a *App) Close() error {
	return a.Store.Close()
}
