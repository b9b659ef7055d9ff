// Package models implements the text and image generation backends behind
// two polymorphic interfaces. Each backend adapts one provider shape: a
// hosted chat-completion API (OpenAI and compatibles), the Gemini API, or
// a locally hosted KoboldCPP server.
package models

import "context"

// TextRequest is one text-generation call. Prompt is the fully rendered
// slot prompt; System is optional steering text for chat-style backends
// that keep a separate system role.
type TextRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// TextResponse carries the generated text and the provider finish reason.
type TextResponse struct {
	Text         string
	FinishReason string
}

// TextBackend is the single capability the orchestrator needs from any
// text model provider.
type TextBackend interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
}

// ImageRequest is one image-generation call.
type ImageRequest struct {
	Prompt   string
	Negative string
	Width    int
	Height   int
}

// ImageBackend generates one image and returns its raw bytes.
type ImageBackend interface {
	Name() string
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}
