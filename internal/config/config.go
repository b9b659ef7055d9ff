// Package config loads configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Default endpoints and models for the shipped backends.
const (
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultKoboldBaseURL  = "http://localhost:5001"
	DefaultTextModel      = "gpt-4o-mini"
	DefaultImageModel     = "gpt-image-1"
	DefaultGeminiImage    = "gemini-3-pro-image-preview"
	DefaultInstructFormat = "plain"
)

// Config holds runtime settings. Credentials are only checked when the
// backend that needs them is constructed, so loading never fails.
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GoogleAPIKey  string
	XAIAPIKey     string
	KoboldBaseURL string

	TextModel      string
	ImageModel     string
	InstructFormat string

	MaxTokens   int
	Temperature float64
	TopP        float64

	ImageWidth     int
	ImageHeight    int
	NegativePrompt string
	SDSteps        int
	SDCfgScale     float64
	SDSampler      string
	SDSeed         int

	// KoboldPasses bounds the context-replay continuation passes issued
	// against a small local context window.
	KoboldPasses int
	// RetryAttempts caps retries of a transient backend failure per slot.
	RetryAttempts int
}

// Load reads env vars and applies defaults.
func Load() Config {
	cfg := Config{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		XAIAPIKey:     os.Getenv("XAI_API_KEY"),
		KoboldBaseURL: os.Getenv("KOBOLD_BASE_URL"),

		TextModel:      os.Getenv("TEXT_MODEL"),
		ImageModel:     os.Getenv("IMAGE_MODEL"),
		InstructFormat: os.Getenv("INSTRUCT_FORMAT"),
		NegativePrompt: os.Getenv("NEGATIVE_PROMPT"),
		SDSampler:      os.Getenv("SD_SAMPLER"),
	}

	cfg.MaxTokens = getEnvInt("MAX_TOKENS", 1024)
	cfg.Temperature = getEnvFloat("TEMPERATURE", 0.8)
	cfg.TopP = getEnvFloat("TOP_P", 0)
	cfg.ImageWidth = getEnvInt("IMAGE_WIDTH", 512)
	cfg.ImageHeight = getEnvInt("IMAGE_HEIGHT", 512)
	cfg.SDSteps = getEnvInt("SD_STEPS", 28)
	cfg.SDCfgScale = getEnvFloat("SD_CFG_SCALE", 7.0)
	cfg.SDSeed = getEnvInt("SD_SEED", -1)
	cfg.KoboldPasses = getEnvInt("KOBOLD_PASSES", 8)
	cfg.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", 3)

	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if cfg.KoboldBaseURL == "" {
		cfg.KoboldBaseURL = DefaultKoboldBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.InstructFormat == "" {
		cfg.InstructFormat = DefaultInstructFormat
	}
	if cfg.SDSampler == "" {
		cfg.SDSampler = "Euler a"
	}

	return cfg
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}
