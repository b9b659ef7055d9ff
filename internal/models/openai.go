package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiBackend wraps an OpenAI-compatible chat-completion client. The
// same adapter serves api.openai.com, x.ai, OpenRouter, and anything else
// speaking the chat-completions dialect behind a different base URL.
type openaiBackend struct {
	client             *openai.Client
	name               string
	model              string
	versionHeaderValue string
}

// NewOpenAIBackend creates a chat-completion text backend. baseURL may be
// empty for the default OpenAI endpoint.
func NewOpenAIBackend(apiKey, baseURL, model string) (TextBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	// Build the UA header once instead of per request.
	headerValue := fmt.Sprintf("openai-go/%s go/%s",
		"1.0.0", strings.TrimPrefix(runtime.Version(), "go"))

	return &openaiBackend{
		client:             &client,
		name:               "openai",
		model:              model,
		versionHeaderValue: headerValue,
	}, nil
}

// NewXAIBackend creates a chat backend against the x.ai endpoint.
func NewXAIBackend(apiKey, model string) (TextBackend, error) {
	backend, err := NewOpenAIBackend(apiKey, "https://api.x.ai/v1", model)
	if err != nil {
		return nil, err
	}
	backend.(*openaiBackend).name = "xai"
	return backend, nil
}

// NewOpenRouterBackend creates a chat backend against OpenRouter.
func NewOpenRouterBackend(apiKey, model string) (TextBackend, error) {
	backend, err := NewOpenAIBackend(apiKey, "https://openrouter.ai/api/v1", model)
	if err != nil {
		return nil, err
	}
	b := backend.(*openaiBackend)
	b.name = "openrouter"
	b.model = fmt.Sprintf("openrouter/%s", model)
	return b, nil
}

func (m *openaiBackend) Name() string { return m.name }

func (m *openaiBackend) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	params := openai.ChatCompletionNewParams{Model: m.model}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params,
		option.WithHeader("user-agent", m.versionHeaderValue))
	if err != nil {
		slog.Error("failed to call chat completions API", "backend", m.name, "error", err.Error())
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return TextResponse{}, classify(m.name, apiErr.StatusCode, err)
		}
		return TextResponse{}, classify(m.name, 0, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return TextResponse{}, classify(m.name, 0, fmt.Errorf("empty completion response"))
	}
	choice := resp.Choices[0]
	return TextResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}
