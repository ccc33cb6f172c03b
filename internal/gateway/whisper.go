package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"go.uber.org/zap"
)

// WhisperClient transcribes audio with a local Whisper server exposing the
// OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	BaseURL  string
	Model    string
	Language string // optional ISO-639-1 hint
	Timeout  time.Duration
	HTTP     *http.Client
	Log      *zap.Logger
}

// transcriptionAPIResponse matches the transcription endpoint's JSON response.
type transcriptionAPIResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the payload and returns the recognized text. Silence
// yields an empty string and no error.
func (c *WhisperClient) Transcribe(ctx context.Context, p audio.Payload) (string, error) {
	if p.Empty() {
		return "", apperr.New(apperr.KindUnsupportedFormat, "audio payload is empty")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", c.Model); err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}
	if c.Language != "" {
		if err := writer.WriteField("language", c.Language); err != nil {
			return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="case`+audio.Extension(p.Format)+`"`)
	header.Set("Content-Type", p.Format)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "build transcription request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log := logger(c.Log)
	log.Debug("transcribing", zap.Int("bytes", len(p.Data)), zap.String("format", p.Format))

	resp, err := httpClient(c.HTTP, c.Timeout).Do(req)
	if err != nil {
		return "", transportError("whisper", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("whisper", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("whisper", resp.StatusCode, respBody)
	}

	var apiResp transcriptionAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", apperr.Wrap(apperr.KindUnknown, "parse whisper response", err)
	}
	return strings.TrimSpace(apiResp.Text), nil
}

// Ping checks that the server answers HTTP at all.
func (c *WhisperClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/", nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "build ping request", err)
	}
	resp, err := httpClient(c.HTTP, c.Timeout).Do(req)
	if err != nil {
		return transportError("whisper", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return statusError("whisper", resp.StatusCode, nil)
	}
	return nil
}
