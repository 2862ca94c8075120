package editor

import (
	"errors"
	"fmt"
)

// DefaultHistoryLimit caps the number of undoable steps kept.
const DefaultHistoryLimit = 200

// ErrNothingToUndo and ErrNothingToRedo are returned when the history is exhausted.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Effect is a non-text state change carried by a transaction. Effects are
// opaque to the document; they only need to know how to reverse themselves.
type Effect interface {
	Invert() Effect
}

// Transaction is one atomic update: text changes plus effects.
type Transaction struct {
	Changes ChangeSet
	Effects []Effect

	// AddToHistory records the transaction as an undoable step.
	AddToHistory bool

	// Undo and Redo are set on transactions produced by history replay.
	Undo bool
	Redo bool
}

// UserEvent reports whether the transaction came from a forward edit rather
// than history replay.
func (tx Transaction) UserEvent() bool {
	return !tx.Undo && !tx.Redo
}

type step struct {
	changes ChangeSet
	effects []Effect
}

// Document is a text buffer with an undo history.
type Document struct {
	text   string
	done   []step // inverses of applied steps
	undone []step // inverses of undone steps
	limit  int
}

// New creates a document with no history.
func New(content string) *Document {
	return &Document{text: content, limit: DefaultHistoryLimit}
}

// Text returns the current content.
func (d *Document) Text() string { return d.text }

// Len returns the current content length in bytes.
func (d *Document) Len() int { return len(d.text) }

// SetHistoryLimit changes how many steps are kept; older steps are discarded.
func (d *Document) SetHistoryLimit(n int) {
	d.limit = n
	d.trim()
}

// Reset replaces the content without recording history, and clears the
// existing history.
func (d *Document) Reset(content string) {
	d.text = content
	d.done = nil
	d.undone = nil
}

// Dispatch applies tx and returns it. Transactions with AddToHistory become
// undoable steps and clear the redo stack. Untracked text changes drop the
// history since earlier steps no longer line up with the content.
func (d *Document) Dispatch(tx Transaction) (Transaction, error) {
	if tx.Changes.Length == 0 && tx.Changes.Empty() {
		tx.Changes.Length = len(d.text)
	}
	before := d.text
	after, err := tx.Changes.Apply(before)
	if err != nil {
		return tx, fmt.Errorf("apply transaction: %w", err)
	}
	d.text = after

	switch {
	case tx.AddToHistory:
		d.done = append(d.done, step{
			changes: tx.Changes.Invert(before),
			effects: invertEffects(tx.Effects),
		})
		d.undone = nil
		d.trim()
	case !tx.Changes.Empty():
		d.done = nil
		d.undone = nil
	}
	return tx, nil
}

// Undo reverts the most recent step and returns the replayed transaction.
func (d *Document) Undo() (Transaction, error) {
	if len(d.done) == 0 {
		return Transaction{}, ErrNothingToUndo
	}
	s := d.done[len(d.done)-1]
	d.done = d.done[:len(d.done)-1]

	tx, inverse, err := d.replay(s)
	if err != nil {
		return Transaction{}, fmt.Errorf("undo: %w", err)
	}
	d.undone = append(d.undone, inverse)
	tx.Undo = true
	return tx, nil
}

// Redo re-applies the most recently undone step.
func (d *Document) Redo() (Transaction, error) {
	if len(d.undone) == 0 {
		return Transaction{}, ErrNothingToRedo
	}
	s := d.undone[len(d.undone)-1]
	d.undone = d.undone[:len(d.undone)-1]

	tx, inverse, err := d.replay(s)
	if err != nil {
		return Transaction{}, fmt.Errorf("redo: %w", err)
	}
	d.done = append(d.done, inverse)
	tx.Redo = true
	return tx, nil
}

// CanUndo reports whether an undo step is available.
func (d *Document) CanUndo() bool { return len(d.done) > 0 }

// CanRedo reports whether a redo step is available.
func (d *Document) CanRedo() bool { return len(d.undone) > 0 }

// HistoryDepth returns the number of undo and redo steps.
func (d *Document) HistoryDepth() (undo, redo int) {
	return len(d.done), len(d.undone)
}

func (d *Document) replay(s step) (Transaction, step, error) {
	before := d.text
	after, err := s.changes.Apply(before)
	if err != nil {
		return Transaction{}, step{}, err
	}
	d.text = after
	tx := Transaction{Changes: s.changes, Effects: s.effects}
	inverse := step{changes: s.changes.Invert(before), effects: invertEffects(s.effects)}
	return tx, inverse, nil
}

func (d *Document) trim() {
	if d.limit > 0 && len(d.done) > d.limit {
		d.done = append([]step(nil), d.done[len(d.done)-d.limit:]...)
	}
}

func invertEffects(effects []Effect) []Effect {
	if len(effects) == 0 {
		return nil
	}
	out := make([]Effect, len(effects))
	for i, e := range effects {
		out[len(effects)-1-i] = e.Invert()
	}
	return out
}
