package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/bdobrica/Jim/common/redact"
	"github.com/bdobrica/Jim/common/version"
)

const (
	defaultOpenAIModel = "gpt-4o"
	defaultMaxTokens   = 250
	defaultTemperature = 0.8
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers
	// (OpenRouter, Ollama, Azure). Empty means api.openai.com.
	BaseURL string

	// Model is the chat model. Defaults to gpt-4o.
	Model string

	// MaxTokens and Temperature are the per-reply defaults (250, 0.8).
	MaxTokens   int
	Temperature float64

	// Vision enables image inputs. Defaults to true for the gpt-4o family.
	Vision *bool
}

// OpenAI implements Provider with the openai-go SDK.
type OpenAI struct {
	client   *openai.Client
	cfg      OpenAIConfig
	vision   bool
	redactor *redact.Redactor
}

// NewOpenAI returns a Provider backed by the OpenAI (or compatible) chat
// completions API. SDK-level retries are disabled; the orchestrator owns
// the retry policy.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	vision := strings.HasPrefix(cfg.Model, "gpt-4o") || strings.HasPrefix(cfg.Model, "gpt-4.1")
	if cfg.Vision != nil {
		vision = *cfg.Vision
	}

	return &OpenAI{
		client:   &client,
		cfg:      cfg,
		vision:   vision,
		redactor: redact.New(cfg.APIKey),
	}, nil
}

func (p *OpenAI) Name() string         { return "openai" }
func (p *OpenAI) SupportsVision() bool { return p.vision }

// Complete sends one chat completion request.
func (p *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens, temperature := p.cfg.MaxTokens, p.cfg.Temperature
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       p.cfg.Model,
		Messages:    p.buildMessages(req),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return Response{}, p.wrapError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: %w: no choices returned", ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return Response{
		Text:  text,
		Model: resp.Model,
		Usage: TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Latency: latency,
	}, nil
}

func (p *OpenAI) buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Context)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Context {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		default:
			messages = append(messages, openai.SystemMessage(m.Content))
		}
	}

	if !p.vision || len(req.Images) == 0 {
		messages = append(messages, openai.UserMessage(req.UserText))
		return messages
	}

	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.UserText)}
	for _, img := range req.Images {
		url := imageURL(img)
		if url == "" {
			continue
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	return append(messages, openai.UserMessage(parts))
}

// imageURL returns a fetchable URL, or a data URL when bytes are present.
func imageURL(img Image) string {
	if len(img.Data) > 0 {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	}
	return img.URL
}

// wrapError attaches the matching sentinel and strips credentials from the
// SDK's error text.
func (p *OpenAI) wrapError(err error) error {
	var sentinel error
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		sentinel = classifyStatus(apiErr.StatusCode)
		if apiErr.Code == "model_not_found" {
			sentinel = ErrInvalidModel
		}
	case isTimeout(err):
		sentinel = ErrTimeout
	}
	return wrapProviderError("openai", sentinel, err, p.redactor)
}
