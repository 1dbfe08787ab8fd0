package enrich

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/sells-group/mre-cli/internal/config"
	"github.com/sells-group/mre-cli/internal/resilience"
	"github.com/sells-group/mre-cli/pkg/anthropic"
)

// Generator sends a prompt to a text-generation service and returns the
// generated text. Errors are classified with resilience.ClassifyStatus.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// DefaultModels is the model used per provider when none is configured.
var DefaultModels = map[string]string{
	"anthropic": "claude-haiku-4-5-20251001",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
}

const systemPrompt = "You extract JORC Mineral Resource Estimate figures from ASX announcements. Answer only in the requested format."

// NewGenerator builds the generator for cfg.Provider. It returns nil and no
// error when enrichment is disabled or the provider has no API key.
func NewGenerator(ctx context.Context, cfg config.EnrichConfig) (Generator, error) {
	if !cfg.Enabled || cfg.APIKey() == "" {
		return nil, nil
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModels[cfg.Provider]
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	switch cfg.Provider {
	case "anthropic", "":
		client := anthropic.NewClient(cfg.AnthropicKey,
			anthropic.WithRequestTimeout(time.Duration(cfg.TimeoutSecs)*time.Second))
		return NewAnthropic(client, model, maxTokens), nil
	case "openai":
		oc := openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			oc.BaseURL = cfg.OpenAIBaseURL
		}
		return NewOpenAI(openai.NewClientWithConfig(oc), model, int(maxTokens)), nil
	case "gemini":
		return NewGemini(ctx, cfg.GeminiKey, "", model)
	default:
		return nil, eris.Errorf("enrich: unknown provider %q", cfg.Provider)
	}
}

// Anthropic generates with the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an anthropic.Client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Generator.
func (a *Anthropic) Name() string { return "anthropic/" + a.model }

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(a.model, "enrich")
	return resp.Text(), nil
}

// OpenAI generates with an OpenAI-compatible chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI wraps a go-openai client.
func NewOpenAI(client *openai.Client, model string, maxTokens int) *OpenAI {
	return &OpenAI{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Generator.
func (o *OpenAI) Name() string { return "openai/" + o.model }

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", resilience.ClassifyStatus(eris.Wrap(err, "openai: create chat completion"), openAIStatus(err))
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Gemini generates with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini API client. baseURL may be empty.
func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Gemini{client: client, model: model}, nil
}

// Name implements Generator.
func (g *Gemini) Name() string { return "gemini/" + g.model }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
	})
	if err != nil {
		return "", resilience.ClassifyStatus(eris.Wrap(err, "gemini: generate content"), geminiStatus(err))
	}
	return strings.TrimSpace(resp.Text()), nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
