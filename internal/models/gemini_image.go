package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiImageBackend generates portraits through the Gemini API's inline
// image modality.
type geminiImageBackend struct {
	client      *genai.Client
	model       string
	aspectRatio string
}

// NewGeminiImageBackend creates a Gemini image backend.
func NewGeminiImageBackend(ctx context.Context, apiKey, model, aspectRatio string) (ImageBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiImageBackend{
		client:      client,
		model:       strings.TrimSpace(model),
		aspectRatio: normalizeAspectRatio(aspectRatio),
	}, nil
}

func (m *geminiImageBackend) Name() string { return "gemini-image" }

func (m *geminiImageBackend) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: m.aspectRatio,
		},
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classify(m.Name(), apiErr.Code, err)
		}
		return nil, classify(m.Name(), 0, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, classify(m.Name(), 0, fmt.Errorf("empty image response"))
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return part.InlineData.Data, nil
	}
	return nil, classify(m.Name(), 0, fmt.Errorf("image data missing in response"))
}

func normalizeAspectRatio(value string) string {
	value = strings.TrimSpace(value)
	switch value {
	case "1:1", "3:4", "4:3", "9:16", "16:9":
		return value
	default:
		return "1:1"
	}
}
