// Package gateway talks to the local speech-to-text and case-analysis
// services. Every failure is reported as an apperr kind the capture workflow
// can recover from.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"go.uber.org/zap"
)

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, p audio.Payload) (string, error)
}

// Analyzer extracts structured case fields from a transcription.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (cases.Fields, error)
}

// Observer is told about every completed gateway call.
type Observer interface {
	ObserveGatewayCall(gateway string, elapsed time.Duration, err error)
}

// maxErrorBody bounds how much of an error response ends up in messages.
const maxErrorBody = 200

func httpClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: timeout}
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// transportError classifies a failed round trip.
func transportError(service string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return apperr.Wrap(apperr.KindTimeout, service+" did not respond in time", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindUnknown, service+" request cancelled", err)
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return apperr.Wrap(apperr.KindServiceUnavailable, service+" is not reachable", err)
	}
	return apperr.Wrap(apperr.KindUnknown, service+" request failed", err)
}

// statusError classifies a non-200 response.
func statusError(service string, code int, body []byte) error {
	detail := truncate(strings.TrimSpace(string(body)), maxErrorBody)
	msg := fmt.Sprintf("%s error (HTTP %d)", service, code)
	if detail != "" {
		msg += ": " + detail
	}

	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusNotFound:
		return apperr.New(apperr.KindServiceUnavailable, msg)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return apperr.New(apperr.KindTimeout, msg)
	case http.StatusUnsupportedMediaType:
		return apperr.New(apperr.KindUnsupportedFormat, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		lower := strings.ToLower(detail)
		for _, hint := range []string{"format", "decode", "codec", "invalid file", "audio"} {
			if strings.Contains(lower, hint) {
				return apperr.New(apperr.KindUnsupportedFormat, msg)
			}
		}
	}
	return apperr.New(apperr.KindUnknown, msg)
}

type observedTranscriber struct {
	next Transcriber
	obs  Observer
}

// ObserveTranscriber reports every Transcribe call to obs.
func ObserveTranscriber(t Transcriber, obs Observer) Transcriber {
	return observedTranscriber{next: t, obs: obs}
}

func (o observedTranscriber) Transcribe(ctx context.Context, p audio.Payload) (string, error) {
	start := time.Now()
	text, err := o.next.Transcribe(ctx, p)
	o.obs.ObserveGatewayCall("transcription", time.Since(start), err)
	return text, err
}

type observedAnalyzer struct {
	next Analyzer
	obs  Observer
}

// ObserveAnalyzer reports every Analyze call to obs.
func ObserveAnalyzer(a Analyzer, obs Observer) Analyzer {
	return observedAnalyzer{next: a, obs: obs}
}

func (o observedAnalyzer) Analyze(ctx context.Context, text string) (cases.Fields, error) {
	start := time.Now()
	fields, err := o.next.Analyze(ctx, text)
	o.obs.ObserveGatewayCall("analysis", time.Since(start), err)
	return fields, err
}
