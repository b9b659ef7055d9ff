package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// geminiBackend drives the Gemini API directly for text generation.
type geminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini text backend.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (TextBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiBackend{client: client, model: model}, nil
}

func (m *geminiBackend) Name() string { return "gemini" }

func (m *geminiBackend) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		slog.Error("failed to call gemini API", "error", err.Error())
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return TextResponse{}, classify("gemini", apiErr.Code, err)
		}
		return TextResponse{}, classify("gemini", 0, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return TextResponse{}, classify("gemini", 0, fmt.Errorf("empty gemini response"))
	}
	return TextResponse{
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}, nil
}
