package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"voxassist/internal/config"
	"voxassist/internal/models"
)

// Fallback reply strings, one per failure class so callers and tests can
// tell the paths apart.
const (
	configErrorResponse  = "Configuration error: API endpoint is invalid."
	badRequestResponse   = "Bad request error. Please simplify your command."
	unauthorizedResponse = "Unauthorized access. API key may be invalid."
	rateLimitResponse    = "Too many requests. Please wait a moment."
	genericErrorResponse = "Oops! Technical issue occurred. Please try again."
)

const defaultTimeout = 30 * time.Second

// Doer issues a single HTTP request. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service calls the generative-language oracle that interprets voice
// commands. The oracle is untrusted: every reply goes through the
// normalizer before anything acts on it, and every failure here degrades
// to a serialized fallback intent instead of an error.
type Service struct {
	endpoint string
	apiKey   string
	client   Doer
}

// NewService builds the oracle client with a bounded request timeout.
func NewService(cfg config.OracleConfig) *Service {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		endpoint: cfg.APIURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewServiceWithClient overrides the HTTP client, used by tests.
func NewServiceWithClient(cfg config.OracleConfig, client Doer) *Service {
	svc := NewService(cfg)
	svc.client = client
	return svc
}

// generateContent wire shapes. Response fields are pointers so every
// access is a presence check rather than a blind dereference.
type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content *candidateContent `json:"content"`
}

type candidateContent struct {
	Parts []textPart `json:"parts"`
}

// Interpret sends one voice command to the oracle and returns its raw
// text reply. The oracle is asked for exactly one JSON object shaped
// like models.Intent; nowLocal is embedded in the prompt so the model is
// never trusted for wall-clock facts. All failure paths return a valid
// serialized fallback intent, never an error.
func (s *Service) Interpret(ctx context.Context, command, assistantName, userName string, nowLocal time.Time) string {
	if s.endpoint == "" || !strings.Contains(s.endpoint, ":generateContent") {
		return fallbackEnvelope(command, configErrorResponse)
	}

	body := generateRequest{
		Contents: []requestContent{
			{Parts: []textPart{{Text: buildPrompt(command, assistantName, userName, nowLocal)}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			TopP:            0.9,
			MaxOutputTokens: 300,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fallbackEnvelope(command, genericErrorResponse)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fallbackEnvelope(command, genericErrorResponse)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-goog-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("oracle request failed: %v", err)
		return fallbackEnvelope(command, genericErrorResponse)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallbackEnvelope(command, statusResponse(resp.StatusCode))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("oracle response decode failed: %v", err)
		return fallbackEnvelope(command, genericErrorResponse)
	}
	text, ok := extractText(&out)
	if !ok {
		log.Printf("oracle response missing text payload")
		return fallbackEnvelope(command, genericErrorResponse)
	}
	return text
}

func statusResponse(code int) string {
	switch code {
	case http.StatusBadRequest:
		return badRequestResponse
	case http.StatusUnauthorized:
		return unauthorizedResponse
	case http.StatusTooManyRequests:
		return rateLimitResponse
	default:
		return genericErrorResponse
	}
}

// extractText walks candidates[0].content.parts[0].text with presence
// checks at every step.
func extractText(out *generateResponse) (string, bool) {
	if out == nil || len(out.Candidates) == 0 {
		return "", false
	}
	content := out.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", false
	}
	text := content.Parts[0].Text
	if text == "" {
		return "", false
	}
	return text, true
}

func fallbackEnvelope(command, response string) string {
	data, err := json.Marshal(models.Intent{
		Type:      models.IntentGeneral,
		UserInput: command,
		Response:  response,
	})
	if err != nil {
		// Intent marshaling cannot fail on plain strings; keep a literal
		// escape hatch anyway.
		return `{"type":"general","userInput":"","response":"` + genericErrorResponse + `"}`
	}
	return string(data)
}
