package models

import (
	"context"
	"fmt"

	"github.com/candre23/AI-CharCard-Editor/internal/config"
)

// Backend identifiers accepted when starting a generation job.
const (
	TextOpenAI     = "openai"
	TextXAI        = "xai"
	TextOpenRouter = "openrouter"
	TextGemini     = "gemini"
	TextKobold     = "koboldcpp"

	ImageOpenAI   = "openai-image"
	ImageGemini   = "gemini-image"
	ImageKoboldSD = "koboldcpp-sd"
)

// NewTextBackend constructs the named text backend from configuration.
func NewTextBackend(ctx context.Context, id string, cfg *config.Config) (TextBackend, error) {
	switch id {
	case TextOpenAI:
		return NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TextModel)
	case TextXAI:
		return NewXAIBackend(cfg.XAIAPIKey, cfg.TextModel)
	case TextOpenRouter:
		return NewOpenRouterBackend(cfg.OpenAIAPIKey, cfg.TextModel)
	case TextGemini:
		return NewGeminiBackend(ctx, cfg.GoogleAPIKey, cfg.TextModel)
	case TextKobold:
		return NewKoboldBackend(cfg.KoboldBaseURL, cfg.KoboldPasses)
	default:
		return nil, fmt.Errorf("unknown text backend %q", id)
	}
}

// NewImageBackend constructs the named image backend from configuration.
func NewImageBackend(ctx context.Context, id string, cfg *config.Config) (ImageBackend, error) {
	switch id {
	case ImageOpenAI:
		return NewOpenAIImageBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ImageModel)
	case ImageGemini:
		// The stock image model default targets OpenAI; swap in the Gemini
		// one unless the user picked a model explicitly.
		model := cfg.ImageModel
		if model == "" || model == config.DefaultImageModel {
			model = config.DefaultGeminiImage
		}
		return NewGeminiImageBackend(ctx, cfg.GoogleAPIKey, model, "")
	case ImageKoboldSD:
		return NewKoboldSDBackend(cfg.KoboldBaseURL, SDOptions{
			Steps:    cfg.SDSteps,
			CfgScale: cfg.SDCfgScale,
			Sampler:  cfg.SDSampler,
			Seed:     cfg.SDSeed,
		})
	default:
		return nil, fmt.Errorf("unknown image backend %q", id)
	}
}
