package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"labelscan/internal/port"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiModel calls the Gemini generateContent REST endpoint.
type GeminiModel struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// GeminiOptions configures a GeminiModel.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int           // Retries after the first attempt
	RetryDelay time.Duration // Base delay, doubled per retry
	Logger     *zap.Logger
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

// APIError is a non-200 answer from the model API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// NewGeminiFromEnv reads the API key from the named environment variable.
func NewGeminiFromEnv(apiKeyEnv string, opts GeminiOptions) (*GeminiModel, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	opts.APIKey = apiKey
	return NewGemini(opts)
}

func NewGemini(opts GeminiOptions) (*GeminiModel, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("gemini model name is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGeminiBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &GeminiModel{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: opts.Logger,
	}, nil
}

func (g *GeminiModel) ModelName() string {
	return g.model
}

// Generate sends a single-turn request. Network failures, 429 and 5xx
// answers are retried with exponential backoff.
func (g *GeminiModel) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var text string
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			var err error
			text, err = g.send(ctx, body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.maxRetries+1)),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("retrying model request",
				zap.String("purpose", req.Purpose),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", err
	}

	g.logger.Debug("model response",
		zap.String("purpose", req.Purpose),
		zap.Int("attempts", attempt),
		zap.String("preview", preview(text, 500)))
	return text, nil
}

func (g *GeminiModel) buildRequest(req port.GenerateRequest) generateRequest {
	parts := []part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		mimeType := req.MIMEType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}

	gc := &generationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	return generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: gc,
	}
}

func (g *GeminiModel) send(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = preview(string(data), 200)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return extractText(data)
}

// extractText joins the text parts of the first candidate.
func extractText(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("failed to parse response (body: %s)", preview(string(data), 200))
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return "", fmt.Errorf("API error: %s", msg.String())
	}

	var sb strings.Builder
	gjson.GetBytes(data, "candidates.0.content.parts.#.text").ForEach(func(_, value gjson.Result) bool {
		sb.WriteString(value.String())
		return true
	})

	if sb.Len() == 0 {
		if reason := gjson.GetBytes(data, "promptFeedback.blockReason"); reason.Exists() {
			return "", fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, reason.String())
		}
		if reason := gjson.GetBytes(data, "candidates.0.finishReason"); reason.Exists() {
			return "", fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, reason.String())
		}
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}
	return true
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
