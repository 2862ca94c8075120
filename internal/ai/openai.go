package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAI streams chat completions from an OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// NewOpenAI creates a provider. An empty baseURL uses the public API and an
// empty model defaults to gpt-4o-mini.
func NewOpenAI(apiKey, baseURL, model string, log *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, log: log}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

func (o *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system, user := BuildPrompt(req)
		o.log.Debug("Streaming critique via OpenAI", "model", o.model, "mode", req.Mode)

		stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Stream: true,
		})
		if err != nil {
			yield("", fmt.Errorf("OpenAI stream failed: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("OpenAI stream failed: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if chunk := resp.Choices[0].Delta.Content; chunk != "" {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}
