package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/bdobrica/Jim/common/redact"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-2.5-flash.
	Model string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Gemini implements Provider with the Google Gen AI SDK.
type Gemini struct {
	client   *genai.Client
	cfg      GeminiConfig
	redactor *redact.Redactor
}

// NewGemini creates a Gemini provider using the Gemini Developer API backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini: create client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, redactor: redact.New(cfg.APIKey)}, nil
}

func (g *Gemini) Name() string         { return "gemini" }
func (g *Gemini) SupportsVision() bool { return true }

// Complete sends one GenerateContent request. System-role context entries
// are folded into the system instruction; assistant turns map to the
// "model" role.
func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens, temperature := g.cfg.MaxTokens, g.cfg.Temperature
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}
	var contents []*genai.Content
	for _, m := range req.Context {
		switch m.Role {
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		default:
			system = append(system, m.Content)
		}
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserText)}
	for _, img := range req.Images {
		switch {
		case len(img.Data) > 0:
			parts = append(parts, genai.NewPartFromBytes(img.Data, mimeOrDefault(img.MIMEType)))
		case img.URL != "":
			parts = append(parts, genai.NewPartFromURI(img.URL, mimeOrDefault(img.MIMEType)))
		}
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	latency := time.Since(start)
	if err != nil {
		return Response{}, g.wrapError(err)
	}
	if resp == nil {
		return Response{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Response{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	out := Response{Text: text, Model: resp.ModelVersion, Latency: latency}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *Gemini) wrapError(err error) error {
	var sentinel error
	var apiErr genai.APIError
	switch {
	case errors.As(err, &apiErr):
		sentinel = classifyStatus(apiErr.Code)
		if apiErr.Code == 400 && strings.Contains(apiErr.Message, "API_KEY_INVALID") {
			sentinel = ErrAuth
		}
	case isTimeout(err):
		sentinel = ErrTimeout
	}
	return wrapProviderError("gemini", sentinel, err, g.redactor)
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "image/png"
	}
	return mime
}
