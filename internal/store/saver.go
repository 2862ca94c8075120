package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/metrics"
)

// DefaultSaveDelay is how long the saver waits after the last change.
const DefaultSaveDelay = 1500 * time.Millisecond

// Saver writes the store through a Persister shortly after it stops changing.
type Saver struct {
	store     *Store
	persister Persister
	deb       *clock.Debouncer[struct{}]
	log       *slog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	lastErr error
}

// NewSaver hooks a saver into st. A zero delay uses DefaultSaveDelay.
func NewSaver(st *Store, p Persister, c clock.Clock, delay time.Duration, log *slog.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Saver{
		store:     st,
		persister: p,
		deb:       clock.NewDebouncer[struct{}](c, delay),
		log:       log,
		timeout:   10 * time.Second,
	}
	st.OnChange(s.Touch)
	return s
}

// Touch (re)starts the save countdown.
func (s *Saver) Touch() {
	s.deb.Schedule(struct{}{}, func(token uint64) {
		if !s.deb.Claim(struct{}{}, token) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.save(ctx); err != nil {
			s.log.Error("saving state failed", "backend", s.persister.Name(), "error", err)
		}
	})
}

// Pending reports whether a save is scheduled.
func (s *Saver) Pending() bool {
	return s.deb.Pending(struct{}{})
}

// Flush cancels any pending countdown and saves immediately.
func (s *Saver) Flush(ctx context.Context) error {
	s.deb.Cancel(struct{}{})
	return s.save(ctx)
}

// Err returns the error from the most recent save, if any.
func (s *Saver) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Saver) save(ctx context.Context) error {
	err := s.persister.Save(ctx, s.store.Snapshot())
	status := "ok"
	if err != nil {
		status = "error"
		err = fmt.Errorf("%s persister: %w", s.persister.Name(), err)
	}
	metrics.StoreWrites.WithLabelValues(s.persister.Name(), status).Inc()

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Open loads persisted state into a new store.
func Open(ctx context.Context, p Persister) (*Store, error) {
	snap, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	st := New()
	st.Load(snap)
	return st, nil
}
