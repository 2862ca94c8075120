package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	genai "google.golang.org/genai"
)

// Gemini streams responses from the Gemini API.
type Gemini struct {
	cli   *genai.Client
	model string
	log   *slog.Logger
}

// NewGemini creates a provider. An empty model defaults to gemini-2.5-flash.
func NewGemini(ctx context.Context, apiKey, model string, log *slog.Logger) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gemini{cli: cli, model: model, log: log}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system, user := BuildPrompt(req)
		g.log.Debug("Streaming critique via Gemini", "model", g.model, "mode", req.Mode)

		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
		for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, genai.Text(user), cfg) {
			if err != nil {
				yield("", fmt.Errorf("Gemini stream failed: %w", err))
				return
			}
			if chunk := resp.Text(); chunk != "" {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}
