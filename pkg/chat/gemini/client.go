// Package gemini implements chat.Transport over the hosted Gemini API.
// Model routing mirrors the product's task split: a fast default model, a
// pro model for deep reasoning and visual tasks, dedicated models for maps
// grounding, title summaries, and speech synthesis, and a Veo model for
// video jobs.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	ModelDefault = "gemini-3-flash-preview"
	ModelPro     = "gemini-3-pro-preview"
	ModelMaps    = "gemini-2.5-flash"
	ModelTitle   = "gemini-2.5-flash-lite"
	ModelTTS     = "gemini-2.5-flash-preview-tts"
	ModelVideo   = "veo-3.1-fast-generate-preview"
	DefaultVoice = "Kore"

	thinkingBudget = 32768
)

// Config wires a Client.
type Config struct {
	APIKey            string
	SystemInstruction string
	Logger            *slog.Logger

	// VideoPollInterval is the delay between Veo job status polls.
	VideoPollInterval time.Duration
}

// Client is the concrete transport over the Gemini API.
type Client struct {
	ai     *genai.Client
	system string
	logger *slog.Logger
	poll   time.Duration
}

// New builds a Client against the hosted Gemini API backend.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.VideoPollInterval <= 0 {
		cfg.VideoPollInterval = 5 * time.Second
	}
	ai, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{
		ai:     ai,
		system: cfg.SystemInstruction,
		logger: cfg.Logger,
		poll:   cfg.VideoPollInterval,
	}, nil
}
