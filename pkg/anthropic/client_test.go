package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageHandler(t *testing.T, text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_test_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":  120,
				"output_tokens": 40,
			},
		})
	}
}

func TestCreateMessage(t *testing.T) {
	ts := httptest.NewServer(messageHandler(t, "NONE"))
	defer ts.Close()

	client := NewClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		System:    "You extract tables.",
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "NONE", resp.Text())
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(40), resp.Usage.OutputTokens)
}

func TestCreateMessage_ErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient("test-key", WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("dial tcp: connection refused")))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "RECORD\n"},
		{Type: "thinking", Text: "ignored"},
		{Type: "text", Text: "END"},
	}}
	assert.Equal(t, "RECORD\nEND", resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
		{Role: "system", Content: "x"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Equal(t, "user", string(out[2].Role))
}

func TestEstimateCost_Haiku(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 6.00, u.EstimateCost("claude-haiku-4-5-20251001"), 1e-9)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	u := TokenUsage{InputTokens: 500_000, OutputTokens: 100_000}
	assert.InDelta(t, 3.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	assert.Zero(t, u.EstimateCost("gpt-4o"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 10, OutputTokens: 5}.LogCost("claude-haiku-4-5-20251001", "enrich")
	})
}
