package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sells-group/mre-cli/internal/config"
	"github.com/sells-group/mre-cli/internal/resilience"
	"github.com/sells-group/mre-cli/pkg/anthropic"
)

func TestNewGenerator_DisabledOrKeyless(t *testing.T) {
	gen, err := NewGenerator(context.Background(), config.EnrichConfig{Enabled: false, AnthropicKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewGenerator(context.Background(), config.EnrichConfig{Enabled: true, Provider: "openai"})
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestNewGenerator_Providers(t *testing.T) {
	gen, err := NewGenerator(context.Background(), config.EnrichConfig{
		Enabled: true, Provider: "anthropic", AnthropicKey: "k", TimeoutSecs: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-haiku-4-5-20251001", gen.Name())

	gen, err = NewGenerator(context.Background(), config.EnrichConfig{
		Enabled: true, Provider: "openai", OpenAIKey: "k", Model: "gpt-4.1-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1-mini", gen.Name())

	gen, err = NewGenerator(context.Background(), config.EnrichConfig{
		Enabled: true, Provider: "gemini", GeminiKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-2.5-flash", gen.Name())
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func TestAnthropicGenerate(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" && req.MaxTokens == 512 &&
			len(req.Messages) == 1 && req.Messages[0].Content == "prompt" && req.System != ""
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "NONE"}},
	}, nil)

	gen := NewAnthropic(client, "claude-haiku-4-5-20251001", 512)
	out, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "NONE", out)
	client.AssertExpectations(t)
}

func TestAnthropicGenerate_PlainErrorPassesThrough(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, eris.New("anthropic: create message"))

	_, err := NewAnthropic(client, "m", 16).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsUnavailable(err))
}

func TestOpenAIGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "prompt", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "NONE"}},
			},
		})
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	out, err := NewOpenAI(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 256).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "NONE", out)
}

func TestOpenAIGenerate_StatusClassified(t *testing.T) {
	tests := []struct {
		status      int
		transient   bool
		unavailable bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`)) //nolint:errcheck
			}))
			defer ts.Close()

			cfg := openai.DefaultConfig("test-key")
			cfg.BaseURL = ts.URL + "/v1"
			_, err := NewOpenAI(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 16).Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
			assert.Equal(t, tt.unavailable, resilience.IsUnavailable(err))
		})
	}
}

func TestGeminiGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "models/gemini-2.5-flash:generateContent")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "NONE\n"}}}},
			},
		})
	}))
	defer ts.Close()

	gen, err := NewGemini(context.Background(), "test-key", ts.URL, "gemini-2.5-flash")
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "NONE", out)
}

func TestGeminiStatus(t *testing.T) {
	err := fmt.Errorf("gemini: generate content: %w", genai.APIError{Code: 403, Message: "denied"})
	assert.Equal(t, 403, geminiStatus(err))
	assert.Equal(t, 0, geminiStatus(eris.New("boom")))
}
