// Package ai streams critique text from language model providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
)

// Analysis modes. Each selects a prompt and, except for critique, fixes the
// type of the resulting annotations.
const (
	ModePassive     = "passive"
	ModeConsistency = "consistency"
	ModeStyle       = "style"
	ModeCritique    = "critique"
	ModeCustom      = "custom"
)

// ErrNoProvider is returned when no provider is configured.
var ErrNoProvider = errors.New("no AI provider configured")

// Request is one critique request.
type Request struct {
	Mode        string
	Document    string
	Instruction string // free-form request, used by ModeCustom
}

// Provider streams a response as a lazy, finite sequence of text chunks.
// A non-nil error ends the sequence. The sequence cannot be restarted;
// calling Stream again issues a new request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Config selects and configures a provider.
type Config struct {
	Provider   string  `yaml:"provider"` // openai, gemini, scripted
	Model      string  `yaml:"model"`
	APIKey     string  `yaml:"-"`
	BaseURL    string  `yaml:"base_url"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	Transcript string  `yaml:"transcript"` // JSONL replay for the scripted provider
}

// NewProvider builds the provider named in cfg, rate limited when cfg.RPS > 0.
func NewProvider(ctx context.Context, cfg Config, log *slog.Logger) (Provider, error) {
	if log == nil {
		log = slog.Default()
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w: OPENAI_API_KEY not set", ErrNoProvider)
		}
		p = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, log)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: %w: GEMINI_API_KEY not set", ErrNoProvider)
		}
		p, err = NewGemini(ctx, cfg.APIKey, cfg.Model, log)
		if err != nil {
			return nil, err
		}
	case "scripted":
		if cfg.Transcript == "" {
			return nil, fmt.Errorf("scripted: %w: no transcript", ErrNoProvider)
		}
		p, err = LoadTranscript(cfg.Transcript)
		if err != nil {
			return nil, err
		}
	case "":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p = Limited(p, rate.NewLimiter(rate.Limit(cfg.RPS), burst))
	}
	log.Debug("AI provider ready", "provider", p.Name())
	return p, nil
}

// Collect drains a stream into one string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}
