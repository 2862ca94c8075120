// Package lifecycle drives annotations through their states (active,
// applied, dismissed) in step with edits to the document they annotate.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/metrics"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/track"
)

const (
	// DefaultDismissDelay is how long an edited annotation survives before
	// it is dismissed automatically.
	DefaultDismissDelay = 1200 * time.Millisecond
	// DefaultCacheSize bounds the per-annotation analysis cache.
	DefaultCacheSize = 128
)

var (
	// ErrNotFound is returned when no active annotation has the given ID.
	ErrNotFound = errors.New("annotation not found")
	// ErrNoSuggestion is returned by Apply for an annotation without a suggestion.
	ErrNoSuggestion = errors.New("annotation has no suggestion")
	// ErrNotOpen is returned by operations that need a loaded document.
	ErrNotOpen = errors.New("no document open")
)

// Store is the persistence the engine writes through.
type Store interface {
	File(path string) model.FileState
	SetMode(path, mode string)
	AddAnalysis(path, mode string, anns []model.Annotation)
	ReplaceActive(path string, active []model.Annotation)
	ArchiveRecords(path string, recs []model.Annotation)
	Restore(path string, ids []string)
}

// Options configures an Engine. Zero values pick the defaults.
type Options struct {
	Clock        clock.Clock
	DismissDelay time.Duration
	CacheSize    int
	Logger       *slog.Logger
}

// Engine owns one open document and the annotations tracked against it.
// All methods are safe for concurrent use; mutations are serialized.
type Engine struct {
	mu      sync.Mutex
	store   Store
	doc     *editor.Document
	tracker *track.Tracker
	timers  *clock.Debouncer[string]
	cache   *lru.Cache[string, string]
	log     *slog.Logger

	path string
	open bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an engine with no document open.
func New(st Store, opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.DismissDelay <= 0 {
		opts.DismissDelay = DefaultDismissDelay
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating analysis cache: %w", err)
	}
	return &Engine{
		store:   st,
		doc:     editor.New(""),
		tracker: track.New(nil),
		timers:  clock.NewDebouncer[string](opts.Clock, opts.DismissDelay),
		cache:   cache,
		log:     opts.Logger,
		subs:    make(map[int]func(Event)),
	}, nil
}

// Open loads content as the current document. This is not a user edit: it
// resets the undo history, cancels pending auto-dismissals, clears the
// analysis cache and re-seeds the tracker from the store.
func (e *Engine) Open(path, content string) {
	e.mu.Lock()
	e.timers.CancelAll()
	e.cache.Purge()
	e.doc.Reset(content)
	e.path = path
	e.open = true
	e.tracker.Set(e.store.File(path).ActiveSet())
	e.tracker.Clamp(e.doc.Len())
	e.store.ReplaceActive(path, e.tracker.Annotations())
	ids := e.tracker.IDs()
	e.mu.Unlock()

	e.log.Debug("document opened", "path", path, "bytes", len(content), "annotations", len(ids))
	e.emit(Event{Kind: EventLoaded, Path: path, IDs: ids})
}

// Close unloads the document and cancels every pending timer.
func (e *Engine) Close() {
	e.mu.Lock()
	e.timers.CancelAll()
	e.cache.Purge()
	path := e.path
	e.open = false
	e.mu.Unlock()

	e.emit(Event{Kind: EventClosed, Path: path})
}

// Edit applies a user edit. Annotations overlapped by the change are
// scheduled for auto-dismissal; further overlapping edits push the deadline
// back.
func (e *Engine) Edit(cs editor.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	res, err := e.dispatch(editor.Transaction{Changes: cs, AddToHistory: true})
	path := e.path
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	e.emit(Event{Kind: EventEdited, Path: path, IDs: res.scheduled})
	return nil
}

// Insert is a convenience for Edit with a single insertion.
func (e *Engine) Insert(pos int, text string) error {
	cs, err := editor.Insert(e.Len(), pos, text)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return e.Edit(cs)
}

// Delete is a convenience for Edit with a single deletion.
func (e *Engine) Delete(from, to int) error {
	cs, err := editor.Delete(e.Len(), from, to)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return e.Edit(cs)
}

// Apply replaces the annotated text with the annotation's suggestion and
// archives it, in a single undoable step.
func (e *Engine) Apply(id string) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	a, ok := e.tracker.Get(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("apply %s: %w", id, ErrNotFound)
	}
	if !a.HasSuggestion() {
		e.mu.Unlock()
		return fmt.Errorf("apply %s: %w", id, ErrNoSuggestion)
	}
	e.timers.Cancel(id)

	cs, err := editor.Replace(e.doc.Len(), a.From, a.To, a.Suggestion)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("apply %s: %w", id, err)
	}
	rec := a
	rec.Applied = true
	_, err = e.dispatch(editor.Transaction{
		Changes:      cs,
		Effects:      []editor.Effect{archive(rec)},
		AddToHistory: true,
	})
	path := e.path
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apply %s: %w", id, err)
	}

	metrics.Transitions.WithLabelValues("applied").Inc()
	e.log.Debug("annotation applied", "path", path, "id", id)
	e.emit(Event{Kind: EventApplied, Path: path, IDs: []string{id}})
	return nil
}

// Dismiss archives the annotation without touching the text.
func (e *Engine) Dismiss(id string) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	a, ok := e.tracker.Get(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("dismiss %s: %w", id, ErrNotFound)
	}
	e.timers.Cancel(id)
	rec := a
	rec.Dismissed = true
	_, err := e.dispatch(editor.Transaction{
		Effects:      []editor.Effect{archive(rec)},
		AddToHistory: true,
	})
	path := e.path
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("dismiss %s: %w", id, err)
	}

	metrics.Transitions.WithLabelValues("dismissed").Inc()
	e.emit(Event{Kind: EventDismissed, Path: path, IDs: []string{id}})
	return nil
}

// ClearAll dismisses every active annotation as one undoable step and
// returns how many were dismissed.
func (e *Engine) ClearAll() (int, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return 0, ErrNotOpen
	}
	active := e.tracker.Annotations()
	if len(active) == 0 {
		e.mu.Unlock()
		return 0, nil
	}
	recs := make([]model.Annotation, len(active))
	ids := make([]string, len(active))
	for i, a := range active {
		e.timers.Cancel(a.ID)
		a.Dismissed = true
		recs[i] = a
		ids[i] = a.ID
	}
	_, err := e.dispatch(editor.Transaction{
		Effects:      []editor.Effect{archive(recs...)},
		AddToHistory: true,
	})
	path := e.path
	e.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}

	metrics.Transitions.WithLabelValues("dismissed").Add(float64(len(ids)))
	e.emit(Event{Kind: EventCleared, Path: path, IDs: ids})
	return len(ids), nil
}

// Undo reverts the last step. It reports false when there is nothing to undo.
func (e *Engine) Undo() (bool, error) {
	return e.replay(true)
}

// Redo re-applies the last undone step.
func (e *Engine) Redo() (bool, error) {
	return e.replay(false)
}

func (e *Engine) replay(undo bool) (bool, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return false, ErrNotOpen
	}
	var (
		tx  editor.Transaction
		err error
	)
	if undo {
		tx, err = e.doc.Undo()
	} else {
		tx, err = e.doc.Redo()
	}
	if errors.Is(err, editor.ErrNothingToUndo) || errors.Is(err, editor.ErrNothingToRedo) {
		e.mu.Unlock()
		return false, nil
	}
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	res := e.process(tx)
	path := e.path
	e.mu.Unlock()

	kind, direction := EventUndo, "undo"
	if !undo {
		kind, direction = EventRedo, "redo"
	}
	metrics.HistorySteps.WithLabelValues(direction).Inc()
	if len(res.restored) > 0 {
		metrics.Transitions.WithLabelValues("restored").Add(float64(len(res.restored)))
	}
	e.emit(Event{Kind: kind, Path: path, IDs: append(res.restored, res.archived...)})
	return true, nil
}

// AddAnnotations merges freshly built annotations into the tracked set.
// Existing annotations keep their live positions. The update is not
// recorded in the undo history.
func (e *Engine) AddAnnotations(mode string, anns []model.Annotation) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	e.store.AddAnalysis(e.path, mode, anns)
	e.tracker.Merge(e.store.File(e.path).ActiveSet())
	e.tracker.Clamp(e.doc.Len())
	e.store.ReplaceActive(e.path, e.tracker.Annotations())
	path := e.path
	e.mu.Unlock()

	ids := make([]string, len(anns))
	for i, a := range anns {
		ids[i] = a.ID
	}
	e.emit(Event{Kind: EventAnnotations, Path: path, IDs: ids})
	return nil
}

// SetAnnotations replaces the active set. Annotations already tracked keep
// their live positions; tracked annotations absent from anns are dropped.
// The update is not recorded in the undo history.
func (e *Engine) SetAnnotations(mode string, anns []model.Annotation) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	before := e.tracker.IDs()
	e.store.SetMode(e.path, mode)
	e.tracker.Merge(anns)
	e.tracker.Clamp(e.doc.Len())
	for _, id := range before {
		if _, ok := e.tracker.Get(id); !ok {
			e.timers.Cancel(id)
			e.cache.Remove(id)
		}
	}
	e.store.ReplaceActive(e.path, e.tracker.Annotations())
	path := e.path
	ids := e.tracker.IDs()
	e.mu.Unlock()

	e.emit(Event{Kind: EventAnnotations, Path: path, IDs: ids})
	return nil
}

// Resync rewrites the store's active set from the tracker, which is
// treated as authoritative.
func (e *Engine) Resync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return
	}
	e.tracker.Clamp(e.doc.Len())
	e.store.ReplaceActive(e.path, e.tracker.Annotations())
	e.log.Warn("annotation state resynchronized", "path", e.path, "active", e.tracker.Len())
}

// Decorations projects the active annotations for rendering.
func (e *Engine) Decorations() []track.Decoration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return track.Project(e.tracker.Annotations(), e.doc.Len())
}

// Active returns the tracked annotations.
func (e *Engine) Active() []model.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Annotations()
}

// Get returns the tracked annotation with id.
func (e *Engine) Get(id string) (model.Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Get(id)
}

// Archive returns the applied and dismissed annotations of the open document.
func (e *Engine) Archive() []model.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil
	}
	return e.store.File(e.path).ArchiveSet()
}

// Content returns the current document text.
func (e *Engine) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Text()
}

// Len returns the current document length in bytes.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Len()
}

// Path returns the path of the open document.
func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// IsOpen reports whether a document is loaded.
func (e *Engine) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Pending reports whether id is waiting to be auto-dismissed.
func (e *Engine) Pending(id string) bool {
	return e.timers.Pending(id)
}

// History returns the number of undo and redo steps available.
func (e *Engine) History() (undo, redo int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.HistoryDepth()
}

// CacheAnalysis remembers a longer explanation generated for an annotation.
func (e *Engine) CacheAnalysis(id, text string) {
	e.cache.Add(id, text)
}

// CachedAnalysis returns a previously cached explanation.
func (e *Engine) CachedAnalysis(id string) (string, bool) {
	return e.cache.Get(id)
}
