package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"labelscan/internal/port"
)

func newTestGemini(t *testing.T, url string, retries int) *GeminiModel {
	t.Helper()
	g, err := NewGemini(GeminiOptions{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    url,
		MaxRetries: retries,
	})
	require.NoError(t, err)
	return g
}

func TestGemini_Generate(t *testing.T) {
	t.Parallel()

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[\"Sugar\","},{"text":" \"Salt\"]"}]}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL, 0)
	text, err := g.Generate(context.Background(), port.GenerateRequest{
		Prompt:          "extract",
		Image:           []byte{0x89, 0x50, 0x4e, 0x47},
		MIMEType:        "image/png",
		Temperature:     0.1,
		MaxOutputTokens: 2048,
		JSON:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, `["Sugar", "Salt"]`, text)

	assert.Equal(t, "extract", gjson.GetBytes(body, "contents.0.parts.0.text").String())
	assert.Equal(t, "image/png", gjson.GetBytes(body, "contents.0.parts.1.inlineData.mimeType").String())
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x89, 0x50, 0x4e, 0x47}),
		gjson.GetBytes(body, "contents.0.parts.1.inlineData.data").String())
	assert.Equal(t, "application/json", gjson.GetBytes(body, "generationConfig.responseMimeType").String())
	assert.Equal(t, int64(2048), gjson.GetBytes(body, "generationConfig.maxOutputTokens").Int())
}

func TestGemini_TextOnlyRequest(t *testing.T) {
	t.Parallel()

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL, 0)
	_, err := g.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), gjson.GetBytes(body, "contents.0.parts.#").Int())
	assert.False(t, gjson.GetBytes(body, "generationConfig.responseMimeType").Exists())
}

func TestGemini_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"done"}]}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL, 2)
	text, err := g.Generate(context.Background(), port.GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGemini_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"API key not valid"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL, 3)
	_, err := g.Generate(context.Background(), port.GenerateRequest{Prompt: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "API key not valid", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGemini_BlockedPrompt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL, 2)
	_, err := g.Generate(context.Background(), port.GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.ErrorContains(t, err, "SAFETY")
}

func TestNewGeminiFromEnv_MissingKey(t *testing.T) {
	t.Setenv("LABELSCAN_TEST_MISSING_KEY", "")
	_, err := NewGeminiFromEnv("LABELSCAN_TEST_MISSING_KEY", GeminiOptions{Model: "m"})
	assert.ErrorContains(t, err, "LABELSCAN_TEST_MISSING_KEY")
}

func TestAPIError_Temporary(t *testing.T) {
	t.Parallel()

	assert.True(t, (&APIError{StatusCode: 429}).Temporary())
	assert.True(t, (&APIError{StatusCode: 502}).Temporary())
	assert.False(t, (&APIError{StatusCode: 403}).Temporary())
}

func TestMockModel(t *testing.T) {
	t.Parallel()

	m := NewMockModel(map[string]string{"extract": "[]"})
	m.FailWith("analyze", errors.New("boom"))

	text, err := m.Generate(context.Background(), port.GenerateRequest{Purpose: "extract"})
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	_, err = m.Generate(context.Background(), port.GenerateRequest{Purpose: "analyze"})
	assert.EqualError(t, err, "boom")
	assert.Len(t, m.Requests(), 2)
}

func TestPreview_CutsOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", preview("short", 200))
	assert.Equal(t, "a", preview("aé", 2))
	assert.True(t, utf8.ValidString(preview(strings.Repeat("ü", 150), 200)))
}
