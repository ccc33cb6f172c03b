// Package config loads casebook settings from a TOML file, environment
// overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/daemon"
	"github.com/elparko/CaseTracker/internal/db"
	"github.com/elparko/CaseTracker/internal/gateway"
	"github.com/go-playground/validator/v10"
)

// Config is the full application configuration.
type Config struct {
	DataDir   string           `toml:"data_dir"`
	DBPath    string           `toml:"db_path" validate:"required"`
	AudioDir  string           `toml:"audio_dir" validate:"required"`
	KeepAudio bool             `toml:"keep_audio"`
	Capture   CaptureConfig    `toml:"capture"`
	Whisper   WhisperConfig    `toml:"whisper"`
	Ollama    OllamaConfig     `toml:"ollama"`
	Breaker   BreakerConfig    `toml:"breaker"`
	Analytics analytics.Policy `toml:"analytics"`
	HTTP      HTTPConfig       `toml:"http"`
	Log       LogConfig        `toml:"log"`
}

// CaptureConfig selects and configures the recording backend.
type CaptureConfig struct {
	Backend     string `toml:"backend" validate:"oneof=ffmpeg daemon"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	InputFormat string `toml:"input_format"`
	Input       string `toml:"input"`
	SocketPath  string `toml:"socket_path"`
	Device      string `toml:"device"`
}

// WhisperConfig configures the transcription service.
type WhisperConfig struct {
	URL            string `toml:"url" validate:"required,url"`
	Model          string `toml:"model" validate:"required"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=1"`
}

// OllamaConfig configures the analysis service.
type OllamaConfig struct {
	URL            string `toml:"url" validate:"required,url"`
	Model          string `toml:"model" validate:"required"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=1"`
}

// BreakerConfig configures the circuit breakers around both services.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `toml:"consecutive_failures" validate:"gte=1"`
	OpenSeconds         int    `toml:"open_seconds" validate:"gte=1"`
}

// HTTPConfig configures the local API server.
type HTTPConfig struct {
	Addr           string   `toml:"addr" validate:"required,hostname_port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
	File   string `toml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DBPath:    db.DefaultDBPath(),
		AudioDir:  audio.DefaultAudioDir(),
		KeepAudio: true,
		Capture: CaptureConfig{
			Backend:    "ffmpeg",
			FFmpegPath: "ffmpeg",
			SocketPath: daemon.SocketPath(),
		},
		Whisper: WhisperConfig{
			URL:            "http://127.0.0.1:8000",
			Model:          "base",
			TimeoutSeconds: 120,
		},
		Ollama: OllamaConfig{
			URL:            "http://127.0.0.1:11434",
			Model:          "medllama2:latest",
			TimeoutSeconds: 60,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 3,
			OpenSeconds:         30,
		},
		Analytics: analytics.DefaultPolicy(),
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8787",
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at its default location if present.
func Load() (*Config, error) {
	return LoadFile(FilePath())
}

// LoadFile reads the config file at path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			md, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, apperr.Validation(fmt.Sprintf("%s: unknown keys: %s", path, strings.Join(keys, ", ")))
			}
			cfg.derivePaths(md.IsDefined("db_path"), md.IsDefined("audio_dir"))
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.DBPath = expandTilde(cfg.DBPath)
	cfg.AudioDir = expandTilde(cfg.AudioDir)
	cfg.Log.File = expandTilde(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// derivePaths places the database and recordings under data_dir unless they
// were set explicitly.
func (c *Config) derivePaths(dbSet, audioSet bool) {
	if c.DataDir == "" {
		return
	}
	dir := expandTilde(c.DataDir)
	if !dbSet {
		c.DBPath = filepath.Join(dir, "casebook.sqlite")
	}
	if !audioSet {
		c.AudioDir = filepath.Join(dir, "audio")
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CASEBOOK_DB_PATH":         &cfg.DBPath,
		"CASEBOOK_AUDIO_DIR":       &cfg.AudioDir,
		"CASEBOOK_CAPTURE_BACKEND": &cfg.Capture.Backend,
		"CASEBOOK_CAPTURE_DEVICE":  &cfg.Capture.Device,
		"CASEBOOK_SOCKET_PATH":     &cfg.Capture.SocketPath,
		"CASEBOOK_WHISPER_URL":     &cfg.Whisper.URL,
		"CASEBOOK_WHISPER_MODEL":   &cfg.Whisper.Model,
		"CASEBOOK_OLLAMA_URL":      &cfg.Ollama.URL,
		"CASEBOOK_OLLAMA_MODEL":    &cfg.Ollama.Model,
		"CASEBOOK_HTTP_ADDR":       &cfg.HTTP.Addr,
		"CASEBOOK_LOG_LEVEL":       &cfg.Log.Level,
		"CASEBOOK_LOG_FILE":        &cfg.Log.File,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CASEBOOK_MONTHLY_GOAL":  &cfg.Analytics.MonthlyGoal,
		"CASEBOOK_RECENT_MONTHS": &cfg.Analytics.RecentMonths,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperr.Validation(fmt.Sprintf("%s must be an integer, got %q", key, v))
		}
		*dst = n
	}
	return nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return apperr.Validation("invalid config: " + strings.Join(msgs, "; "))
}

// WhisperTimeout returns the transcription request timeout.
func (c *Config) WhisperTimeout() time.Duration {
	return time.Duration(c.Whisper.TimeoutSeconds) * time.Second
}

// OllamaTimeout returns the analysis request timeout.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSeconds) * time.Second
}

// GatewayBreaker returns the circuit breaker settings for the gateways.
func (c *Config) GatewayBreaker() gateway.BreakerConfig {
	b := gateway.DefaultBreakerConfig()
	b.ConsecutiveFailures = c.Breaker.ConsecutiveFailures
	b.Timeout = time.Duration(c.Breaker.OpenSeconds) * time.Second
	return b
}

// FilePath returns the config file location.
func FilePath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "casebook", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "casebook", "config.toml")
	}
	return ""
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
