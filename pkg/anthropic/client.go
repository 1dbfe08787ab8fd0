// Package anthropic is a thin wrapper over the Anthropic Messages API used by
// the enrichment stage.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the pipeline.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Temperature *float64
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type string
	Text string
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-1-20250805":   {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD from a TokenUsage and model ID.
// Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(u.InputTokens)/1e6)*pricing[0] + (float64(u.OutputTokens)/1e6)*pricing[1]
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Debug("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

// Option configures the SDK client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// WithRequestTimeout bounds each HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithRequestTimeout(d))
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK. SDK-level
// retries are disabled; callers own the retry policy.
func NewClient(apiKey string, opts ...Option) Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &sdkClient{client: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	return fromSDKMessage(msg), nil
}

// StatusCode extracts the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		blocks = append(blocks, ContentBlock{
			Type: b.Type,
			Text: b.Text,
		})
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Content:    blocks,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
