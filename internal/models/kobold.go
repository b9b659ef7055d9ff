package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/candre23/AI-CharCard-Editor/internal/tokens"
	"github.com/candre23/AI-CharCard-Editor/internal/utils"
)

// koboldBackend talks to a locally hosted KoboldCPP completion server.
//
// Local models run with small context windows, so long generations use
// context replay: each continuation pass resends the instruction plus the
// text produced so far instead of a bare "continue".
type koboldBackend struct {
	baseURL   string
	client    *http.Client
	maxPasses int
}

type koboldGenerateRequest struct {
	Prompt       string   `json:"prompt"`
	MaxLength    int      `json:"max_length,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	TopP         float64  `json:"top_p,omitempty"`
	StopSequence []string `json:"stop_sequence,omitempty"`
}

type koboldGenerateResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
	Text string `json:"text"`
}

// NewKoboldBackend creates a completion backend against a KoboldCPP base
// URL. maxPasses bounds continuation; 1 disables it.
func NewKoboldBackend(baseURL string, maxPasses int) (TextBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if maxPasses < 1 {
		maxPasses = 1
	}
	return &koboldBackend{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 120 * time.Second},
		maxPasses: maxPasses,
	}, nil
}

func (m *koboldBackend) Name() string { return "koboldcpp" }

func (m *koboldBackend) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	basePrompt := req.Prompt
	if req.System != "" {
		basePrompt = req.System + "\n\n" + req.Prompt
	}

	var aggregated strings.Builder
	for pass := 1; pass <= m.maxPasses; pass++ {
		prompt := basePrompt
		if aggregated.Len() > 0 {
			// Context replay: instruction plus everything generated so far.
			prompt = basePrompt + "\n" + aggregated.String()
		}

		piece, err := m.generateOnce(ctx, koboldGenerateRequest{
			Prompt:       prompt,
			MaxLength:    req.MaxTokens,
			Temperature:  req.Temperature,
			TopP:         req.TopP,
			StopSequence: req.Stop,
		})
		if err != nil {
			return TextResponse{}, err
		}
		if strings.TrimSpace(piece) == "" {
			break
		}
		aggregated.WriteString(piece)
		if pass > 1 {
			slog.Info("kobold continuation pass", "pass", pass, "total_chars", aggregated.Len())
		}
		if passComplete(piece, aggregated.String(), req) {
			break
		}
	}

	return TextResponse{Text: aggregated.String(), FinishReason: "stop"}, nil
}

// passComplete reports whether the last pass finished the generation, so
// replaying context for another pass would only append run-on text. The
// output is complete once it parses as a JSON object, a stop sequence
// fired, or the pass came in under the length ceiling, meaning the model
// reached its own end instead of being cut off.
func passComplete(piece, aggregated string, req TextRequest) bool {
	if _, ok := utils.ExtractJSON(aggregated); ok {
		return true
	}
	for _, stop := range req.Stop {
		if stop != "" && strings.Contains(piece, stop) {
			return true
		}
	}
	if req.MaxTokens > 0 && tokens.Estimate(piece, tokens.VocabSmall) < req.MaxTokens {
		return true
	}
	return false
}

func (m *koboldBackend) generateOnce(ctx context.Context, payload koboldGenerateRequest) (string, error) {
	out, status, err := m.post(ctx, "/api/v1/generate", payload)
	if err != nil {
		return "", classify(m.Name(), status, err)
	}

	var resp koboldGenerateResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", classify(m.Name(), 0, fmt.Errorf("invalid generate response: %w", err))
	}
	if len(resp.Results) > 0 {
		return resp.Results[0].Text, nil
	}
	return resp.Text, nil
}

// post issues a JSON POST and returns the response body. A non-2xx status
// is returned both as the status and as an error carrying a body excerpt.
func (m *koboldBackend) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	out, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, err
	}
	if httpResp.StatusCode >= 400 {
		return nil, httpResp.StatusCode, fmt.Errorf("kobold error %d: %s", httpResp.StatusCode, excerpt(out))
	}
	return out, httpResp.StatusCode, nil
}

func excerpt(body []byte) string {
	const limit = 500
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
