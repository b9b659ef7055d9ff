package models

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// koboldSDBackend drives KoboldCPP's bundled Stable Diffusion through the
// A1111-compatible txt2img endpoint.
type koboldSDBackend struct {
	kobold   *koboldBackend
	steps    int
	cfgScale float64
	sampler  string
	seed     int
}

// SDOptions tune the Stable Diffusion sampler.
type SDOptions struct {
	Steps    int
	CfgScale float64
	Sampler  string
	Seed     int
}

type sdTxt2ImgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	SamplerName    string  `json:"sampler_name"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int     `json:"seed"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
}

type sdTxt2ImgResponse struct {
	Images []string `json:"images"`
}

// NewKoboldSDBackend creates an image backend against a KoboldCPP base URL.
func NewKoboldSDBackend(baseURL string, opts SDOptions) (ImageBackend, error) {
	inner, err := NewKoboldBackend(baseURL, 1)
	if err != nil {
		return nil, err
	}
	if opts.Steps <= 0 {
		opts.Steps = 28
	}
	if opts.CfgScale <= 0 {
		opts.CfgScale = 7.0
	}
	if opts.Sampler == "" {
		opts.Sampler = "Euler a"
	}
	return &koboldSDBackend{
		kobold:   inner.(*koboldBackend),
		steps:    opts.Steps,
		cfgScale: opts.CfgScale,
		sampler:  opts.Sampler,
		seed:     opts.Seed,
	}, nil
}

func (m *koboldSDBackend) Name() string { return "koboldcpp-sd" }

func (m *koboldSDBackend) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	payload := sdTxt2ImgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.Negative,
		Steps:          m.steps,
		CfgScale:       m.cfgScale,
		SamplerName:    m.sampler,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           m.seed,
		BatchSize:      1,
		NIter:          1,
	}
	out, status, err := m.kobold.post(ctx, "/sdapi/v1/txt2img", payload)
	if err != nil {
		return nil, classify(m.Name(), status, err)
	}

	var resp sdTxt2ImgResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, classify(m.Name(), 0, fmt.Errorf("invalid txt2img response: %w", err))
	}
	if len(resp.Images) == 0 {
		return nil, classify(m.Name(), 0, fmt.Errorf("backend returned no images"))
	}

	// Some servers return a data URL; keep only the base64 tail.
	encoded := resp.Images[0]
	if i := strings.Index(encoded, ","); i >= 0 {
		encoded = encoded[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, classify(m.Name(), 0, fmt.Errorf("invalid image payload: %w", err))
	}
	return raw, nil
}
