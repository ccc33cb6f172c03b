package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for a gateway circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `toml:"max_requests" validate:"gte=1"`
	Interval            time.Duration `toml:"-"`
	Timeout             time.Duration `toml:"-"`
	ConsecutiveFailures uint32        `toml:"consecutive_failures" validate:"gte=1"`
}

// DefaultBreakerConfig trips after three consecutive outages and tries again
// after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// Breaker fails fast with ServiceUnavailable while a service keeps failing.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker for the named service.
func NewBreaker(name string, cfg BreakerConfig, log *zap.Logger) *Breaker {
	log = logger(log)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Only outages count as failures.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			kind := apperr.KindOf(err)
			return kind != apperr.KindServiceUnavailable && kind != apperr.KindTimeout
		},
	})
	return &Breaker{cb: cb}
}

// State returns the breaker state: "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperr.Wrap(apperr.KindServiceUnavailable, b.cb.Name()+" temporarily unavailable after repeated failures", err)
	}
	return v, err
}

type guardedTranscriber struct {
	next Transcriber
	b    *Breaker
}

// GuardTranscriber routes every call through b.
func GuardTranscriber(t Transcriber, b *Breaker) Transcriber {
	return guardedTranscriber{next: t, b: b}
}

func (g guardedTranscriber) Transcribe(ctx context.Context, p audio.Payload) (string, error) {
	v, err := g.b.execute(func() (any, error) {
		return g.next.Transcribe(ctx, p)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type guardedAnalyzer struct {
	next Analyzer
	b    *Breaker
}

// GuardAnalyzer routes every call through b.
func GuardAnalyzer(a Analyzer, b *Breaker) Analyzer {
	return guardedAnalyzer{next: a, b: b}
}

func (g guardedAnalyzer) Analyze(ctx context.Context, text string) (cases.Fields, error) {
	v, err := g.b.execute(func() (any, error) {
		return g.next.Analyze(ctx, text)
	})
	if err != nil {
		return cases.Fields{}, err
	}
	return v.(cases.Fields), nil
}
