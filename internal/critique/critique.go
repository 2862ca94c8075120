// Package critique runs one AI critique request end to end: it streams the
// response, waits for it to complete, then turns the quoted passages into
// annotations against the document as it stands at that moment.
package critique

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/annotate"
	"github.com/sprite-ai/margin/internal/metrics"
	"github.com/sprite-ai/margin/internal/model"
)

// ErrCancelled is returned when the request was aborted by Cancel or by a
// newer request.
var ErrCancelled = errors.New("critique cancelled")

// Result is the outcome of one run.
type Result struct {
	Mode        string
	Message     model.ChatMessage
	Annotations []model.Annotation
	Dropped     int
}

// Options configures a Critic.
type Options struct {
	Logger *slog.Logger
	// Current returns the live document text used to locate quotes once the
	// response is complete. Defaults to the text the request was made with.
	Current func() string
	Now     func() time.Time
	NewID   func() string
}

// Critic issues critique requests against one provider. Only one request
// is live at a time; starting a new one abandons the previous one.
type Critic struct {
	provider ai.Provider
	acc      ai.Accumulator
	opts     Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a Critic streaming from p.
func New(p ai.Provider, opts Options) *Critic {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Critic{provider: p, opts: opts}
}

// Provider returns the provider name.
func (c *Critic) Provider() string { return c.provider.Name() }

// Run requests a critique of doc in mode. onChunk, if non-nil, sees every
// chunk of the live request as it arrives.
func (c *Critic) Run(ctx context.Context, doc, mode string, onChunk func(string)) (Result, error) {
	return c.RunRequest(ctx, ai.Request{Mode: mode, Document: doc}, onChunk)
}

// RunRequest is Run with a full request, used for custom instructions.
func (c *Critic) RunRequest(ctx context.Context, req ai.Request, onChunk func(string)) (Result, error) {
	if !ai.ValidMode(req.Mode) {
		return Result{}, fmt.Errorf("unknown mode %q", req.Mode)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	ticket := c.acc.Begin()
	c.mu.Unlock()

	provider := c.provider.Name()
	log := c.opts.Logger.With("provider", provider, "mode", req.Mode)
	start := c.opts.Now()

	res := Result{
		Mode: req.Mode,
		Message: model.ChatMessage{
			ID:        c.opts.NewID(),
			Role:      model.RoleAssistant,
			Mode:      req.Mode,
			CreatedAt: start,
		},
	}

	var partial strings.Builder
	var streamErr error
	for chunk, err := range c.provider.Stream(ctx, req) {
		if err != nil {
			streamErr = err
			break
		}
		if !c.acc.Append(ticket, chunk) {
			streamErr = ErrCancelled
			break
		}
		partial.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	text, live := c.acc.Text(ticket)
	if streamErr == nil && !live {
		streamErr = ErrCancelled
	}
	if streamErr != nil && errors.Is(streamErr, context.Canceled) {
		streamErr = ErrCancelled
	}
	if streamErr != nil {
		outcome := "error"
		if errors.Is(streamErr, ErrCancelled) {
			outcome = "cancelled"
		}
		metrics.Streams.WithLabelValues(provider, outcome).Inc()
		log.Warn("critique stream failed", "error", streamErr, "partial_bytes", partial.Len())

		res.Message.Content = partial.String()
		res.Message.Error = streamErr.Error()
		c.release(ticket)
		return res, streamErr
	}

	metrics.Streams.WithLabelValues(provider, "ok").Inc()
	metrics.StreamDuration.WithLabelValues(provider).Observe(c.opts.Now().Sub(start).Seconds())

	current := req.Document
	if c.opts.Current != nil {
		current = c.opts.Current()
	}
	built := annotate.Build(text, current, annotate.Options{Type: ai.ModeType(req.Mode)})
	if built.Dropped > 0 {
		metrics.QuotesDropped.Add(float64(built.Dropped))
		log.Debug("quotes not found in document", "dropped", built.Dropped)
	}

	ids := make([]string, len(built.Annotations))
	for i, a := range built.Annotations {
		ids[i] = a.ID
		metrics.AnnotationsCreated.WithLabelValues(a.Type.String(), "ai").Inc()
	}

	res.Message.Content = text
	res.Message.AnnotationIDs = ids
	res.Annotations = built.Annotations
	res.Dropped = built.Dropped
	c.release(ticket)

	log.Info("critique complete", "annotations", len(ids), "dropped", built.Dropped)
	return res, nil
}

// Cancel aborts the in-flight request, if any. Chunks still arriving from
// it are discarded.
func (c *Critic) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc.Abort()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Critic) release(ticket ai.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acc.Valid(ticket) {
		c.acc.Abort()
		c.cancel = nil
	}
}

// Annotator receives the annotations of a completed run.
type Annotator interface {
	Path() string
	AddAnnotations(mode string, anns []model.Annotation) error
}

// Sessions records critique conversations.
type Sessions interface {
	AppendMessage(path string, msg model.ChatMessage)
	LinkAnnotations(path, msgID string, ids []string) error
}

// Record appends the run's message to the conversation of the open
// document and hands its annotations to e. The message is linked to its
// annotations only after they have been added. Failed runs are recorded
// without annotations.
func Record(e Annotator, sessions Sessions, res Result) error {
	path := e.Path()
	msg := res.Message
	msg.AnnotationIDs = nil
	sessions.AppendMessage(path, msg)

	if res.Message.Error != "" {
		return nil
	}
	if len(res.Annotations) > 0 {
		if err := e.AddAnnotations(res.Mode, res.Annotations); err != nil {
			return fmt.Errorf("adding annotations: %w", err)
		}
	}
	if err := sessions.LinkAnnotations(path, msg.ID, res.Message.AnnotationIDs); err != nil {
		return fmt.Errorf("linking annotations: %w", err)
	}
	return nil
}
