package ai

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/time/rate"
)

type limited struct {
	p       Provider
	limiter *rate.Limiter
}

// Limited wraps p so each request waits for a token from limiter.
func Limited(p Provider, limiter *rate.Limiter) Provider {
	return &limited{p: p, limiter: limiter}
}

func (l *limited) Name() string { return l.p.Name() }

func (l *limited) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := l.limiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("rate limit: %w", err))
			return
		}
		for chunk, err := range l.p.Stream(ctx, req) {
			if !yield(chunk, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
