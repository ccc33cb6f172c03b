package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/tags"
	"go.uber.org/zap"
)

// OllamaClient analyzes transcriptions with a model served by a local Ollama
// instance.
type OllamaClient struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	HTTP    *http.Client
	Log     *zap.Logger
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

const analysisPrompt = `
Analyze this medical case transcription and extract structured information.
Return your response as valid JSON with the following structure:

{
    "specialty": "medical specialty (e.g., Internal Medicine, Cardiology, Surgery, Pediatrics, Emergency Medicine)",
    "case_type": "type of case (e.g., acute, chronic, diagnostic, therapeutic, procedural)",
    "complexity": "complexity level (low, medium, high)",
    "patient_demographics": {
        "age_range": "age range (e.g., 20-30, 60-70, pediatric, geriatric)",
        "gender": "gender if mentioned (male, female, not specified)"
    },
    "summary": "brief 2-3 sentence summary of the case",
    "key_findings": ["list", "of", "key", "clinical", "findings"],
    "differential_diagnosis": ["list", "of", "possible", "diagnoses"],
    "learning_points": ["key", "learning", "points", "from", "case"],
    "tags": ["relevant", "medical", "tags", "conditions", "symptoms", "procedures", "medications"]
}

Use an empty string or an empty list for anything the transcription does not
support. Do not guess.

For tags, include relevant medical terms like:
- Medical conditions (e.g., "hypertension", "diabetes", "mi", "copd")
- Symptoms (e.g., "chest-pain", "shortness-of-breath", "fever")
- Procedures (e.g., "ecg", "ct-scan", "surgery")
- Body systems (e.g., "cardiovascular", "respiratory", "neurological")
- Urgency (e.g., "emergency", "routine", "urgent")
- Patient factors (e.g., "elderly", "pediatric", "pregnancy")

Medical case transcription:
%s

Respond only with the JSON object, no additional text:
`

// Prompt returns the analysis prompt for a transcription.
func Prompt(text string) string {
	return fmt.Sprintf(analysisPrompt, text)
}

// Analyze asks the model for structured fields. Output that cannot be parsed
// into a JSON object is an Unknown failure.
func (c *OllamaClient) Analyze(ctx context.Context, text string) (cases.Fields, error) {
	if strings.TrimSpace(text) == "" {
		return cases.Fields{}, apperr.Validation("transcription text is empty")
	}

	payload, err := json.Marshal(generateRequest{
		Model:  c.Model,
		Prompt: Prompt(text),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return cases.Fields{}, apperr.Wrap(apperr.KindUnknown, "marshal analysis request", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return cases.Fields{}, apperr.Wrap(apperr.KindUnknown, "build analysis request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log := logger(c.Log)
	log.Debug("analyzing", zap.String("model", c.Model), zap.Int("chars", len(text)))

	resp, err := httpClient(c.HTTP, c.Timeout).Do(req)
	if err != nil {
		return cases.Fields{}, transportError("ollama", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cases.Fields{}, transportError("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		return cases.Fields{}, statusError("ollama", resp.StatusCode, body)
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return cases.Fields{}, apperr.Wrap(apperr.KindUnknown, "parse ollama response", err)
	}
	if gen.Error != "" {
		return cases.Fields{}, apperr.New(apperr.KindUnknown, "ollama: "+gen.Error)
	}

	fields, err := ParseFields(gen.Response)
	if err != nil {
		log.Warn("unparseable analysis", zap.String("response", truncate(gen.Response, maxErrorBody)))
		return cases.Fields{}, err
	}
	return fields, nil
}

// Ping checks that Ollama is up by listing its models.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/api/tags", nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "build ping request", err)
	}
	resp, err := httpClient(c.HTTP, c.Timeout).Do(req)
	if err != nil {
		return transportError("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return statusError("ollama", resp.StatusCode, body)
	}
	return nil
}

// ParseFields decodes the model's JSON answer into normalized case fields.
// Missing or mistyped values become empty. Suggested tags are normalized and
// extended with tags derived from specialty, complexity and case type.
func ParseFields(raw string) (cases.Fields, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return cases.Fields{}, apperr.New(apperr.KindUnknown, "analysis output is not a JSON object")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return cases.Fields{}, apperr.Wrap(apperr.KindUnknown, "analysis output is not a JSON object", err)
	}

	demo, _ := m["patient_demographics"].(map[string]any)
	f := cases.Fields{
		Specialty:  str(m, "specialty"),
		CaseType:   str(m, "case_type"),
		Complexity: str(m, "complexity"),
		Demographics: cases.Demographics{
			AgeRange: str(demo, "age_range"),
			Gender:   str(demo, "gender"),
		},
		Summary:               str(m, "summary"),
		KeyFindings:           list(m, "key_findings"),
		DifferentialDiagnosis: list(m, "differential_diagnosis"),
		LearningPoints:        list(m, "learning_points"),
	}

	var auto []string
	if f.Specialty != "" {
		auto = append(auto, f.Specialty)
	}
	if f.Complexity != "" {
		auto = append(auto, "complexity-"+f.Complexity)
	}
	if f.CaseType != "" {
		auto = append(auto, f.CaseType)
	}
	f.SuggestedTags = tags.Merge(list(m, "tags"), auto)
	return f, nil
}

// extractObject returns the outermost {...} span, tolerating code fences or
// chatter around it.
func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func list(m map[string]any, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		// Some models answer a single item as a bare string.
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
