// Package track keeps annotation ranges attached to the text they describe
// while the document changes underneath them.
package track

import (
	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/model"
)

// Tracker is the authoritative set of live annotation positions. It is not
// safe for concurrent use; the lifecycle engine serializes access.
type Tracker struct {
	anns []model.Annotation
}

// New returns a tracker holding a copy of anns.
func New(anns []model.Annotation) *Tracker {
	t := &Tracker{}
	t.Set(anns)
	return t
}

// Map remaps every annotation through cs. The start sticks after text
// inserted at it and the end sticks before text inserted at it, so edits at
// the boundaries never grow a range. A collapsed range re-expands when text
// identical to its matched text is inserted exactly at its position, which
// is how an undone deletion brings its annotation back.
func (t *Tracker) Map(cs editor.ChangeSet) {
	if cs.Empty() {
		return
	}
	length := cs.NewLength()
	for i := range t.anns {
		a := &t.anns[i]

		if a.From == a.To && a.MatchedText != "" {
			if text, ok := cs.InsertionAt(a.From); ok && text == a.MatchedText {
				a.From = cs.MapPos(a.From, editor.AssocBefore)
				a.To = a.From + len(text)
				continue
			}
		}

		a.From = cs.MapPos(a.From, editor.AssocAfter)
		a.To = cs.MapPos(a.To, editor.AssocBefore)
		clampInto(a, length)
	}
}

// Merge reconciles the tracked set with incoming. Annotations present in
// both keep their tracked (live) positions; new ones take their incoming
// positions; tracked annotations missing from incoming are dropped. The
// result follows the order of incoming.
func (t *Tracker) Merge(incoming []model.Annotation) {
	byID := make(map[string]model.Annotation, len(t.anns))
	for _, a := range t.anns {
		byID[a.ID] = a
	}
	merged := make([]model.Annotation, 0, len(incoming))
	for _, a := range incoming {
		if tracked, ok := byID[a.ID]; ok {
			merged = append(merged, tracked)
			continue
		}
		merged = append(merged, a)
	}
	t.anns = merged
}

// Set replaces the tracked set with a copy of anns.
func (t *Tracker) Set(anns []model.Annotation) {
	t.anns = append([]model.Annotation(nil), anns...)
}

// Add appends annotations whose ids are not already tracked.
func (t *Tracker) Add(anns ...model.Annotation) {
	for _, a := range anns {
		if _, ok := t.index(a.ID); !ok {
			t.anns = append(t.anns, a)
		}
	}
}

// Remove drops the annotation with id and returns it.
func (t *Tracker) Remove(id string) (model.Annotation, bool) {
	i, ok := t.index(id)
	if !ok {
		return model.Annotation{}, false
	}
	a := t.anns[i]
	t.anns = append(t.anns[:i], t.anns[i+1:]...)
	return a, true
}

// Get returns the tracked annotation with id.
func (t *Tracker) Get(id string) (model.Annotation, bool) {
	i, ok := t.index(id)
	if !ok {
		return model.Annotation{}, false
	}
	return t.anns[i], true
}

// Annotations returns a copy of the tracked set.
func (t *Tracker) Annotations() []model.Annotation {
	return append([]model.Annotation(nil), t.anns...)
}

// IDs returns the tracked ids in order.
func (t *Tracker) IDs() []string {
	ids := make([]string, len(t.anns))
	for i, a := range t.anns {
		ids[i] = a.ID
	}
	return ids
}

// Len returns the number of tracked annotations.
func (t *Tracker) Len() int { return len(t.anns) }

// Clamp forces every range into [0, docLen].
func (t *Tracker) Clamp(docLen int) {
	for i := range t.anns {
		clampInto(&t.anns[i], docLen)
	}
}

func (t *Tracker) index(id string) (int, bool) {
	for i, a := range t.anns {
		if a.ID == id {
			return i, true
		}
	}
	return -1, false
}

func clampInto(a *model.Annotation, docLen int) {
	a.From = clamp(a.From, 0, docLen)
	a.To = clamp(a.To, 0, docLen)
	if a.To < a.From {
		a.To = a.From
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
