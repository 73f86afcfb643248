// Package llm implements the two external AI capabilities as a single
// chat-completions HTTP client: vision classification of the part photo and
// the web-search/answer call used for sourcing. The wire format is the
// OpenAI-compatible shape spoken by all the candidate vendors, so the vendor
// is just a base URL and a model name.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/partfinder/identify/models"
)

// Config contains client configuration.
type Config struct {
	BaseURL     string // e.g. "https://api.groq.com/openai/v1"
	APIKey      string
	VisionModel string // multimodal model for classification
	AnswerModel string // search/answer model for sourcing

	ClassifyTimeout time.Duration // default 30s
	AnswerTimeout   time.Duration // default 28s
	AnswerRetries   int           // default 2
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		ClassifyTimeout: 30 * time.Second,
		AnswerTimeout:   28 * time.Second,
		AnswerRetries:   2,
	}
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Client. A nil httpClient falls back to a plain client;
// cmd/api injects an otelhttp-instrumented one.
func New(config Config, httpClient *http.Client) *Client {
	if config.ClassifyTimeout <= 0 {
		config.ClassifyTimeout = DefaultConfig().ClassifyTimeout
	}
	if config.AnswerTimeout <= 0 {
		config.AnswerTimeout = DefaultConfig().AnswerTimeout
	}
	if config.AnswerRetries < 0 {
		config.AnswerRetries = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{config: config, httpClient: httpClient}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const classifyPrompt = `Tu identifies une pièce de quincaillerie ou de plomberie à partir d'une photo.
Contexte fourni par l'utilisateur : %s

Réponds UNIQUEMENT avec un objet JSON strict, sans commentaire :
{"material": "...", "technical_standard": "...", "search_query": "...", "confidence": 0.0}

- material : matière probable (laiton, inox, acier galva, zamak, PVC...)
- technical_standard : standard technique probable (ex: "Filetage 15/21", "Charnière 35mm")
- search_query : requête d'achat courte et précise en français
- confidence : ta certitude entre 0 et 1`

// Classify sends the photo and user context to the vision model and parses
// its JSON answer into a ClassificationResult. Malformed output is a hard
// error for this request; the pipeline surfaces it as a failure report.
func (c *Client) Classify(ctx context.Context, imageData []byte, contextText string) (models.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ClassifyTimeout)
	defer cancel()

	if contextText == "" {
		contextText = "aucun"
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)

	req := chatRequest{
		Model: c.config.VisionModel,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: fmt.Sprintf(classifyPrompt, contextText)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("classification call: %w", err)
	}

	result, err := parseClassification(content)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("classification parse: %w", err)
	}
	return result, nil
}

// parseClassification tolerates fenced output and French field names from
// models that ignore the strict-JSON instruction.
func parseClassification(content string) (models.ClassificationResult, error) {
	var raw struct {
		Material   string   `json:"material"`
		Matiere    string   `json:"matiere"`
		Standard   string   `json:"technical_standard"`
		StandardFR string   `json:"standard"`
		Query      string   `json:"search_query"`
		QueryFR    string   `json:"requete"`
		Confidence *float64 `json:"confidence"`
		Confiance  *float64 `json:"confiance"`
	}
	if err := json.Unmarshal(CleanJSON([]byte(content)), &raw); err != nil {
		return models.ClassificationResult{}, err
	}

	result := models.ClassificationResult{
		Material:          firstNonEmpty(raw.Material, raw.Matiere),
		TechnicalStandard: firstNonEmpty(raw.Standard, raw.StandardFR),
		SearchQuery:       firstNonEmpty(raw.Query, raw.QueryFR),
		Confidence:        raw.Confidence,
	}
	if result.Confidence == nil {
		result.Confidence = raw.Confiance
	}
	if result.Material == "" && result.TechnicalStandard == "" && result.SearchQuery == "" {
		return models.ClassificationResult{}, fmt.Errorf("no usable fields in %q", content)
	}
	return result, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Answer sends prompt to the answer model and returns the raw text content.
// Transport failures and non-success statuses are retried with geometric
// backoff (1.2^attempt seconds) up to the configured retry count.
func (c *Client) Answer(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:    c.config.AnswerModel,
		Messages: []message{{Role: "user", Content: prompt}},
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.AnswerRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(1.2, float64(attempt)) * float64(time.Second))
			slog.Debug("answer capability retry", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.AnswerTimeout)
		content, err := c.complete(callCtx, req)
		cancel()
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("answer call exhausted retries: %w", lastErr)
}

// complete posts a chat request and returns the first choice's content.
func (c *Client) complete(ctx context.Context, chatReq chatRequest) (string, error) {
	if c.config.BaseURL == "" {
		return "", fmt.Errorf("no capability endpoint configured")
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("capability request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("capability status %d: %s", resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
