package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wav = audio.Payload{Data: []byte("RIFF....WAVE"), Format: audio.FormatWAV, Duration: time.Second}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "base.en", r.FormValue("model"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, wav.Data, data)
		assert.Equal(t, "case.wav", header.Filename)

		json.NewEncoder(w).Encode(map[string]string{"text": "  58 year old with chest pain  "})
	}))
	defer srv.Close()

	c := &WhisperClient{BaseURL: srv.URL, Model: "base.en", Timeout: time.Second}
	text, err := c.Transcribe(context.Background(), wav)

	require.NoError(t, err)
	assert.Equal(t, "58 year old with chest pain", text)
}

func TestWhisperSilenceIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	text, err := (&WhisperClient{BaseURL: srv.URL}).Transcribe(context.Background(), wav)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestWhisperErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperr.Kind
	}{
		{"service down", http.StatusServiceUnavailable, "loading model", apperr.KindServiceUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, "", apperr.KindTimeout},
		{"unsupported media", http.StatusUnsupportedMediaType, "", apperr.KindUnsupportedFormat},
		{"bad audio", http.StatusBadRequest, `{"error":"could not decode audio"}`, apperr.KindUnsupportedFormat},
		{"other", http.StatusInternalServerError, "boom", apperr.KindUnknown},
		{"garbage body", http.StatusOK, "not json", apperr.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := (&WhisperClient{BaseURL: srv.URL}).Transcribe(context.Background(), wav)
			assert.Equal(t, tt.want, apperr.KindOf(err), "err = %v", err)
		})
	}
}

func TestWhisperUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := (&WhisperClient{BaseURL: url}).Transcribe(context.Background(), wav)
	assert.True(t, apperr.Is(err, apperr.KindServiceUnavailable), "err = %v", err)
}

func TestWhisperBadURL(t *testing.T) {
	c := &WhisperClient{BaseURL: "http://bad host"}

	_, err := c.Transcribe(context.Background(), wav)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err), "err = %v", err)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(c.Ping(context.Background())))
}

func TestWhisperTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := (&WhisperClient{BaseURL: srv.URL}).Transcribe(ctx, wav)
	assert.True(t, apperr.Is(err, apperr.KindTimeout), "err = %v", err)
}

func TestWhisperEmptyPayload(t *testing.T) {
	_, err := (&WhisperClient{BaseURL: "http://127.0.0.1:1"}).Transcribe(context.Background(), audio.Payload{})
	assert.True(t, apperr.Is(err, apperr.KindUnsupportedFormat))
}

func TestWhisperPing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	assert.NoError(t, (&WhisperClient{BaseURL: srv.URL}).Ping(context.Background()))
}
