package models

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiImageBackend generates portraits through the OpenAI Images API.
type openaiImageBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIImageBackend creates an Images API backend. baseURL may be
// empty for the default endpoint.
func NewOpenAIImageBackend(apiKey, baseURL, model string) (ImageBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gpt-image-1"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiImageBackend{client: &client, model: model}, nil
}

func (m *openaiImageBackend) Name() string { return "openai-image" }

func (m *openaiImageBackend) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(m.model),
		Prompt: req.Prompt,
		N:      openai.Int(1),
	}
	if req.Width > 0 && req.Height > 0 {
		params.Size = openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", req.Width, req.Height))
	}

	resp, err := m.client.Images.Generate(ctx, params)
	if err != nil {
		slog.Error("failed to call images API", "error", err.Error())
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, classify(m.Name(), apiErr.StatusCode, err)
		}
		return nil, classify(m.Name(), 0, err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, classify(m.Name(), 0, fmt.Errorf("empty image response"))
	}

	encoded := resp.Data[0].B64JSON
	if encoded == "" {
		return nil, classify(m.Name(), 0, fmt.Errorf("image data missing in response"))
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, classify(m.Name(), 0, fmt.Errorf("invalid image payload: %w", err))
	}
	return raw, nil
}
