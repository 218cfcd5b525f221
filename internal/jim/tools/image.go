// Package tools holds the auxiliary providers behind `!jim image` and
// `!jim search`. Each one degrades to ErrDisabled when it has no
// credentials, so callers can answer with a fixed in-character line.
package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"github.com/bdobrica/Jim/common/version"
)

// ErrDisabled is returned by providers that are not configured.
var ErrDisabled = errors.New("tools: feature disabled")

// ErrEmptyPrompt is returned when the image prompt is blank.
var ErrEmptyPrompt = errors.New("tools: prompt cannot be empty")

const (
	// ImageTimeout bounds a single image generation call.
	ImageTimeout = 60 * time.Second

	defaultOpenAIImageModel = "dall-e-3"
	defaultGeminiImageModel = "gemini-2.5-flash-image"
)

// Image is a generated picture. Either Data or URL is set.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
	// RevisedPrompt is the prompt the provider actually used, when reported.
	RevisedPrompt string
}

// ImageGenerator turns a prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (Image, error)
}

type disabledImages struct{}

func (disabledImages) Generate(context.Context, string) (Image, error) {
	return Image{}, ErrDisabled
}

// DisabledImages is an ImageGenerator that always returns ErrDisabled.
func DisabledImages() ImageGenerator { return disabledImages{} }

// OpenAIImageConfig configures OpenAI image generation.
type OpenAIImageConfig struct {
	APIKey  string
	BaseURL string
	// Model defaults to dall-e-3.
	Model string
	// Size defaults to 1024x1024.
	Size string
}

// OpenAIImages generates images with the OpenAI Images API.
type OpenAIImages struct {
	client *openai.Client
	model  string
	size   string
}

// NewOpenAIImages returns an ImageGenerator, or DisabledImages when no API
// key is configured.
func NewOpenAIImages(cfg OpenAIImageConfig) ImageGenerator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return DisabledImages()
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIImageModel
	}
	if cfg.Size == "" {
		cfg.Size = string(openai.ImageGenerateParamsSize1024x1024)
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
	return &OpenAIImages{client: &client, model: cfg.Model, size: cfg.Size}
}

func (g *OpenAIImages) Generate(ctx context.Context, prompt string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, ErrEmptyPrompt
	}
	ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
	defer cancel()

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(g.model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(g.size),
	})
	if err != nil {
		return Image{}, fmt.Errorf("tools: openai image: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return Image{}, fmt.Errorf("tools: openai image: empty response")
	}

	d := resp.Data[0]
	img := Image{URL: d.URL, RevisedPrompt: d.RevisedPrompt, MIMEType: "image/png"}
	if d.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return Image{}, fmt.Errorf("tools: openai image: decode: %w", err)
		}
		img.Data = data
	}
	if img.URL == "" && len(img.Data) == 0 {
		return Image{}, fmt.Errorf("tools: openai image: no image data")
	}
	return img, nil
}

// GeminiImageConfig configures Gemini image generation.
type GeminiImageConfig struct {
	APIKey  string
	BaseURL string
	// Model defaults to gemini-2.5-flash-image.
	Model string
	// AspectRatio is one of 1:1, 3:4, 4:3, 9:16, 16:9. Defaults to 1:1.
	AspectRatio string
}

// GeminiImages generates images with a Gemini image model.
type GeminiImages struct {
	client      *genai.Client
	model       string
	aspectRatio string
}

// NewGeminiImages returns an ImageGenerator, or DisabledImages when no API
// key is configured.
func NewGeminiImages(ctx context.Context, cfg GeminiImageConfig) (ImageGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return DisabledImages(), nil
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiImageModel
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("tools: gemini image: create client: %w", err)
	}
	return &GeminiImages{
		client:      client,
		model:       cfg.Model,
		aspectRatio: normalizeAspectRatio(cfg.AspectRatio),
	}, nil
}

func (g *GeminiImages) Generate(ctx context.Context, prompt string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, ErrEmptyPrompt
	}
	ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: g.aspectRatio},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return Image{}, fmt.Errorf("tools: gemini image: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return Image{}, fmt.Errorf("tools: gemini image: empty response")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := strings.TrimSpace(part.InlineData.MIMEType)
		if mime == "" {
			mime = "image/png"
		}
		return Image{Data: part.InlineData.Data, MIMEType: mime}, nil
	}
	return Image{}, fmt.Errorf("tools: gemini image: image data missing in response")
}

func normalizeAspectRatio(value string) string {
	switch value = strings.TrimSpace(value); value {
	case "1:1", "3:4", "4:3", "9:16", "16:9":
		return value
	}
	return "1:1"
}
