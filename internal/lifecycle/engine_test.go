package lifecycle

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/store"
)

const testPath = "chapter.md"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, content string, anns ...model.Annotation) (*Engine, *store.Store, *clock.Fake) {
	t.Helper()
	st := store.New()
	st.AddAnalysis(testPath, "style", anns)
	c := clock.NewFake(epoch)
	e, err := New(st, Options{Clock: c, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	e.Open(testPath, content)
	return e, st, c
}

func ann(id string, from, to int, doc string) model.Annotation {
	return model.Annotation{
		ID:          id,
		Type:        model.TypeStyle,
		From:        from,
		To:          to,
		MatchedText: doc[from:to],
		Message:     "wordy",
	}
}

func activeIDs(e *Engine) []string {
	var ids []string
	for _, a := range e.Active() {
		ids = append(ids, a.ID)
	}
	return ids
}

var thirtyChars = strings.Repeat("abcdefghij", 3)

// Scenario: an annotation on [10,25) is typed into at offset 15.
func TestAutoDismissAfterEdit(t *testing.T) {
	e, st, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(15, "Z"))
	c.Advance(1199 * time.Millisecond)

	a, ok := e.Get("x")
	require.True(t, ok, "still active before the debounce elapses")
	assert.Equal(t, 10, a.From)
	assert.Equal(t, 26, a.To)

	c.Advance(2 * time.Millisecond)
	_, ok = e.Get("x")
	assert.False(t, ok)
	assert.Empty(t, st.Active(testPath))

	archive := st.Archive(testPath)
	require.Len(t, archive, 1)
	assert.True(t, archive[0].Dismissed)
	assert.True(t, archive[0].Auto)
}

func TestAutoDismissDebounceRestarts(t *testing.T) {
	e, _, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(12, "a"))
	c.Advance(600 * time.Millisecond)
	require.NoError(t, e.Insert(14, "b"))

	c.Advance(700 * time.Millisecond) // t+1300: first deadline passed
	_, ok := e.Get("x")
	assert.True(t, ok, "second edit pushed the deadline to t+1800ms")

	c.Advance(501 * time.Millisecond)
	_, ok = e.Get("x")
	assert.False(t, ok)
}

func TestEditOutsideRangeDoesNotSchedule(t *testing.T) {
	e, _, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(10, "aa")) // at from: shifts
	require.NoError(t, e.Insert(27, "bb")) // at to: no growth
	require.NoError(t, e.Delete(0, 2))
	assert.False(t, e.Pending("x"))

	c.Advance(5 * time.Second)
	a, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, 10, a.From)
	assert.Equal(t, 25, a.To)
}

func TestUndoAutoDismissRestoresPosition(t *testing.T) {
	e, st, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(15, "Z"))
	c.Advance(2 * time.Second)
	require.Empty(t, e.Active())

	undone, err := e.Undo()
	require.NoError(t, err)
	require.True(t, undone)

	a, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, 10, a.From)
	assert.Equal(t, 26, a.To)
	assert.Empty(t, st.Archive(testPath))
	assert.False(t, e.Pending("x"), "undo never schedules auto-dismiss")

	// Undoing the typing itself overlaps the annotation but must not schedule.
	_, err = e.Undo()
	require.NoError(t, err)
	assert.Equal(t, thirtyChars, e.Content())
	assert.False(t, e.Pending("x"))
	c.Advance(5 * time.Second)
	_, ok = e.Get("x")
	assert.True(t, ok)
}

func TestUndoCancelsPendingTimer(t *testing.T) {
	e, _, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(15, "Z"))
	require.True(t, e.Pending("x"))

	_, err := e.Undo()
	require.NoError(t, err)
	assert.False(t, e.Pending("x"))

	c.Advance(5 * time.Second)
	a, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, 25, a.To)
}

func TestApplyIsAtomicAndUndoable(t *testing.T) {
	doc := "She was seen by him walking down the path. It rained."
	x := ann("x", 0, 42, doc)
	x.Suggestion = "He saw her walking down the path."
	y := ann("y", 43, 53, doc)
	e, st, _ := newEngine(t, doc, x, y)

	e.CacheAnalysis("x", "long explanation")
	require.NoError(t, e.Apply("x"))

	assert.Equal(t, "He saw her walking down the path. It rained.", e.Content())
	assert.Equal(t, []string{"y"}, activeIDs(e))
	moved, _ := e.Get("y")
	assert.Equal(t, "It rained.", e.Content()[moved.From:moved.To])
	_, cached := e.CachedAnalysis("x")
	assert.False(t, cached)

	archive := st.Archive(testPath)
	require.Len(t, archive, 1)
	assert.True(t, archive[0].Applied)

	undo, _ := e.History()
	assert.Equal(t, 1, undo, "apply is one history step")

	_, err := e.Undo()
	require.NoError(t, err)
	assert.Equal(t, doc, e.Content())
	restored, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, 0, restored.From)
	assert.Equal(t, 42, restored.To)
	assert.True(t, restored.Active())
	back, _ := e.Get("y")
	assert.Equal(t, 43, back.From)
	assert.Empty(t, st.Archive(testPath))

	_, err = e.Redo()
	require.NoError(t, err)
	assert.Equal(t, "He saw her walking down the path. It rained.", e.Content())
	_, ok = e.Get("x")
	assert.False(t, ok)
}

func TestApplyErrors(t *testing.T) {
	e, _, _ := newEngine(t, thirtyChars, ann("x", 0, 5, thirtyChars))

	assert.ErrorIs(t, e.Apply("missing"), ErrNotFound)
	assert.ErrorIs(t, e.Apply("x"), ErrNoSuggestion)
	assert.Equal(t, thirtyChars, e.Content())
}

func TestDismissCancelsTimerAndIsUndoable(t *testing.T) {
	e, st, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	require.NoError(t, e.Insert(15, "Z"))
	require.NoError(t, e.Dismiss("x"))
	assert.False(t, e.Pending("x"))

	archive := st.Archive(testPath)
	require.Len(t, archive, 1)
	assert.False(t, archive[0].Auto)

	_, err := e.Undo()
	require.NoError(t, err)
	_, ok := e.Get("x")
	assert.True(t, ok)

	c.Advance(5 * time.Second)
	_, ok = e.Get("x")
	assert.True(t, ok, "restored annotation is not auto-dismissed by the old timer")

	assert.ErrorIs(t, e.Dismiss("nope"), ErrNotFound)
}

func TestClearAllIsOneStep(t *testing.T) {
	e, st, _ := newEngine(t, thirtyChars, ann("a", 0, 5, thirtyChars), ann("b", 6, 9, thirtyChars))

	n, err := e.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, e.Active())
	assert.Len(t, st.Archive(testPath), 2)

	_, err = e.Undo()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, activeIDs(e))

	empty, _, _ := newEngine(t, "empty")
	n, err = empty.ClearAll()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenResetsHistoryAndTimers(t *testing.T) {
	e, st, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))
	require.NoError(t, e.Insert(15, "Z"))
	e.CacheAnalysis("x", "cached")

	st.AddAnalysis("other.md", "style", []model.Annotation{ann("o", 0, 3, "other")})
	e.Open("other.md", "other")

	assert.False(t, e.Pending("x"))
	undo, redo := e.History()
	assert.Zero(t, undo+redo)
	_, cached := e.CachedAnalysis("x")
	assert.False(t, cached)
	assert.Equal(t, []string{"o"}, activeIDs(e))

	c.Advance(5 * time.Second)
	assert.Len(t, st.Active(testPath), 1, "timer for the previous file never fired")
}

func TestOpenClampsStoredRanges(t *testing.T) {
	st := store.New()
	st.AddAnalysis(testPath, "", []model.Annotation{{ID: "x", From: 5, To: 50, MatchedText: "x"}})
	e, err := New(st, Options{Clock: clock.NewFake(epoch)})
	require.NoError(t, err)

	e.Open(testPath, "short")
	a, _ := e.Get("x")
	assert.Equal(t, 5, a.From)
	assert.Equal(t, 5, a.To)
	assert.Empty(t, e.Decorations())
}

func TestAddAnnotationsKeepsLivePositionsAndSkipsHistory(t *testing.T) {
	e, _, _ := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))
	require.NoError(t, e.Insert(0, "12345"))

	stale := ann("x", 10, 25, thirtyChars)
	fresh := ann("y", 0, 3, "12345")
	require.NoError(t, e.AddAnnotations("style", []model.Annotation{stale, fresh}))

	x, _ := e.Get("x")
	assert.Equal(t, 15, x.From)
	assert.Equal(t, 30, x.To)
	assert.ElementsMatch(t, []string{"x", "y"}, activeIDs(e))

	undo, _ := e.History()
	assert.Equal(t, 1, undo, "only the insert is undoable")

	_, err := e.Undo()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, activeIDs(e), "undo does not erase the new analysis")
}

func TestSetAnnotationsDropsMissing(t *testing.T) {
	e, st, _ := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars), ann("y", 0, 5, thirtyChars))
	require.NoError(t, e.Insert(12, "!"))
	require.True(t, e.Pending("x"))

	require.NoError(t, e.SetAnnotations("passive", []model.Annotation{ann("y", 0, 5, thirtyChars)}))
	assert.Equal(t, []string{"y"}, activeIDs(e))
	assert.False(t, e.Pending("x"))
	assert.Equal(t, "passive", st.Mode(testPath))
}

func TestEventsAreDelivered(t *testing.T) {
	e, _, c := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))

	var kinds []EventKind
	unsubscribe := e.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		_ = e.Active() // callbacks may re-enter the engine
	})

	require.NoError(t, e.Insert(15, "Z"))
	c.Advance(2 * time.Second)
	_, err := e.Undo()
	require.NoError(t, err)

	unsubscribe()
	require.NoError(t, e.Insert(0, "q"))

	assert.Equal(t, []EventKind{EventEdited, EventAutoDismissed, EventUndo}, kinds)
}

func TestClosedEngineRejectsMutations(t *testing.T) {
	e, _, _ := newEngine(t, thirtyChars)
	e.Close()

	cs, err := editor.Insert(len(thirtyChars), 0, "x")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Edit(cs), ErrNotOpen)
	assert.ErrorIs(t, e.Dismiss("x"), ErrNotOpen)
	_, err = e.Undo()
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestUndoWithEmptyHistory(t *testing.T) {
	e, _, _ := newEngine(t, thirtyChars)
	ok, err := e.Undo()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDecorationsFollowEdits(t *testing.T) {
	e, _, _ := newEngine(t, thirtyChars, ann("b", 20, 25, thirtyChars), ann("a", 0, 5, thirtyChars))
	require.NoError(t, e.Insert(0, "__"))

	decos := e.Decorations()
	require.Len(t, decos, 2)
	assert.Equal(t, "a", decos[0].ID)
	assert.Equal(t, 2, decos[0].From)
	assert.Equal(t, 22, decos[1].From)
}

func TestResyncTrustsTracker(t *testing.T) {
	e, st, _ := newEngine(t, thirtyChars, ann("x", 10, 25, thirtyChars))
	st.ReplaceActive(testPath, nil)

	e.Resync()
	assert.Len(t, st.Active(testPath), 1)
}

func TestArchiveEffectInvert(t *testing.T) {
	rec := model.Annotation{ID: "x", Dismissed: true}
	eff := archive(rec)
	inv := eff.Invert().(archiveEffect)
	assert.Empty(t, inv.Archived)
	assert.Equal(t, []model.Annotation{rec}, inv.Restored)
	assert.Equal(t, eff, inv.Invert())
}
