package lifecycle

import (
	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/metrics"
	"github.com/sprite-ai/margin/internal/model"
)

// archiveEffect moves annotations between the tracked set and the archive.
// Archived records carry their terminal flags; restoring clears them.
type archiveEffect struct {
	Archived []model.Annotation
	Restored []model.Annotation
}

func archive(recs ...model.Annotation) archiveEffect {
	return archiveEffect{Archived: recs}
}

func (e archiveEffect) Invert() editor.Effect {
	return archiveEffect{Archived: e.Restored, Restored: e.Archived}
}

type stepResult struct {
	archived  []string
	restored  []string
	scheduled []string
}

// dispatch runs a forward transaction through the document and applies it.
// Caller holds e.mu.
func (e *Engine) dispatch(tx editor.Transaction) (stepResult, error) {
	if tx.Changes.Empty() {
		tx.Changes.Length = e.doc.Len()
	}
	tx, err := e.doc.Dispatch(tx)
	if err != nil {
		return stepResult{}, err
	}
	return e.process(tx), nil
}

// process applies a transaction the document has already accepted: text
// changes first, then effects, then timers and the store. Forward edits
// schedule auto-dismissal for the annotations they overlap; history replay
// cancels the timers of everything the step touches and never schedules.
// Caller holds e.mu.
func (e *Engine) process(tx editor.Transaction) stepResult {
	var res stepResult

	overlapped := e.overlapping(tx.Changes)
	e.tracker.Map(tx.Changes)

	var archived, restored []model.Annotation
	for _, eff := range tx.Effects {
		ae, ok := eff.(archiveEffect)
		if !ok {
			continue
		}
		for _, rec := range ae.Archived {
			e.tracker.Remove(rec.ID)
			e.timers.Cancel(rec.ID)
			e.cache.Remove(rec.ID)
			archived = append(archived, rec)
			res.archived = append(res.archived, rec.ID)
		}
		for _, rec := range ae.Restored {
			rec.Applied, rec.Dismissed, rec.Auto = false, false, false
			e.tracker.Add(rec)
			restored = append(restored, rec)
			res.restored = append(res.restored, rec.ID)
		}
	}
	e.tracker.Clamp(e.doc.Len())

	if tx.UserEvent() {
		for _, id := range overlapped {
			if _, ok := e.tracker.Get(id); ok {
				e.scheduleDismiss(id)
				res.scheduled = append(res.scheduled, id)
			}
		}
	} else {
		for _, id := range overlapped {
			e.timers.Cancel(id)
		}
		for _, rec := range restored {
			e.timers.Cancel(rec.ID)
		}
	}

	if len(archived) > 0 {
		e.store.ArchiveRecords(e.path, archived)
	}
	if len(res.restored) > 0 {
		e.store.Restore(e.path, res.restored)
	}
	e.store.ReplaceActive(e.path, e.tracker.Annotations())
	return res
}

// overlapping returns the ids of tracked annotations that cs overlaps, in
// pre-edit coordinates.
func (e *Engine) overlapping(cs editor.ChangeSet) []string {
	if cs.Empty() {
		return nil
	}
	var ids []string
	for _, a := range e.tracker.Annotations() {
		if cs.Touches(a.From, a.To) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// scheduleDismiss (re)arms the auto-dismiss timer for id. Caller holds e.mu.
func (e *Engine) scheduleDismiss(id string) {
	e.timers.Schedule(id, func(token uint64) { e.expire(id, token) })
}

// expire runs on the timer goroutine when an edited annotation's debounce
// interval elapses without further overlapping edits.
func (e *Engine) expire(id string, token uint64) {
	e.mu.Lock()
	if !e.timers.Claim(id, token) || !e.open {
		e.mu.Unlock()
		return
	}
	a, ok := e.tracker.Get(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	rec := a
	rec.Dismissed = true
	rec.Auto = true
	_, err := e.dispatch(editor.Transaction{
		Effects:      []editor.Effect{archive(rec)},
		AddToHistory: true,
	})
	path := e.path
	e.mu.Unlock()

	if err != nil {
		e.log.Error("auto-dismiss failed", "path", path, "id", id, "error", err)
		return
	}
	metrics.Transitions.WithLabelValues("auto_dismissed").Inc()
	e.log.Debug("annotation auto-dismissed", "path", path, "id", id)
	e.emit(Event{Kind: EventAutoDismissed, Path: path, IDs: []string{id}})
}
