// Package editor models a text document edited through transactions, with
// an undo history in which every step carries its own inverse.
package editor

import (
	"fmt"
	"sort"
	"strings"
)

// Assoc decides which side of an insertion a mapped position sticks to.
type Assoc int

const (
	// AssocBefore keeps the position before text inserted at it.
	AssocBefore Assoc = -1
	// AssocAfter moves the position past text inserted at it.
	AssocAfter Assoc = 1
)

// Change replaces the byte range [From, To) of the pre-edit document with Insert.
type Change struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Insert string `json:"insert,omitempty"`
}

// IsInsertion reports whether the change removes nothing.
func (c Change) IsInsertion() bool {
	return c.From == c.To
}

// ChangeSet is an ordered set of non-overlapping changes against a document
// of Length bytes. All offsets are in pre-edit coordinates.
type ChangeSet struct {
	Changes []Change `json:"changes"`
	Length  int      `json:"length"`
}

// NewChangeSet sorts and validates changes against a document of the given length.
func NewChangeSet(length int, changes ...Change) (ChangeSet, error) {
	sorted := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c.From == c.To && c.Insert == "" {
			continue
		}
		sorted = append(sorted, c)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	prev := 0
	for i, c := range sorted {
		if c.From < 0 || c.To < c.From || c.To > length {
			return ChangeSet{}, fmt.Errorf("change [%d,%d) out of range for length %d", c.From, c.To, length)
		}
		if c.From < prev {
			return ChangeSet{}, fmt.Errorf("change [%d,%d) overlaps previous change", c.From, c.To)
		}
		if i > 0 && c.IsInsertion() && sorted[i-1].IsInsertion() && sorted[i-1].From == c.From {
			return ChangeSet{}, fmt.Errorf("two insertions at offset %d", c.From)
		}
		prev = c.To
	}
	return ChangeSet{Changes: sorted, Length: length}, nil
}

// Insert builds a change set inserting text at pos.
func Insert(length, pos int, text string) (ChangeSet, error) {
	return NewChangeSet(length, Change{From: pos, To: pos, Insert: text})
}

// Delete builds a change set removing [from, to).
func Delete(length, from, to int) (ChangeSet, error) {
	return NewChangeSet(length, Change{From: from, To: to})
}

// Replace builds a change set replacing [from, to) with text.
func Replace(length, from, to int, text string) (ChangeSet, error) {
	return NewChangeSet(length, Change{From: from, To: to, Insert: text})
}

// Empty reports whether the change set leaves the document untouched.
func (cs ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// NewLength returns the document length after the changes are applied.
func (cs ChangeSet) NewLength() int {
	n := cs.Length
	for _, c := range cs.Changes {
		n += len(c.Insert) - (c.To - c.From)
	}
	return n
}

// MapPos maps a pre-edit position to its post-edit equivalent.
//
// A position inside a replaced range collapses to the start of the
// replacement with AssocBefore and to its end with AssocAfter. A position at
// the start of a replaced range maps to the start of the replacement, and a
// position at its end maps past it. Pure insertions at the position follow
// assoc.
func (cs ChangeSet) MapPos(pos int, assoc Assoc) int {
	delta := 0
	for _, c := range cs.Changes {
		if pos < c.From {
			break
		}
		if c.IsInsertion() {
			if pos == c.From && assoc == AssocBefore {
				return pos + delta
			}
			delta += len(c.Insert)
			continue
		}
		if pos == c.From {
			return c.From + delta
		}
		if pos < c.To {
			if assoc == AssocBefore {
				return c.From + delta
			}
			return c.From + delta + len(c.Insert)
		}
		delta += len(c.Insert) - (c.To - c.From)
	}
	return pos + delta
}

// Touches reports whether any change overlaps the open interval (from, to):
// changeStart < to && changeEnd > from.
func (cs ChangeSet) Touches(from, to int) bool {
	for _, c := range cs.Changes {
		if c.From >= to {
			break
		}
		if c.To > from {
			return true
		}
	}
	return false
}

// InsertionAt returns the text purely inserted at pos, if any.
func (cs ChangeSet) InsertionAt(pos int) (string, bool) {
	for _, c := range cs.Changes {
		if c.From > pos {
			break
		}
		if c.IsInsertion() && c.From == pos {
			return c.Insert, true
		}
	}
	return "", false
}

// Apply returns doc with the changes applied.
func (cs ChangeSet) Apply(doc string) (string, error) {
	if len(doc) != cs.Length {
		return "", fmt.Errorf("change set expects length %d, document has %d", cs.Length, len(doc))
	}
	var b strings.Builder
	b.Grow(cs.NewLength())
	pos := 0
	for _, c := range cs.Changes {
		b.WriteString(doc[pos:c.From])
		b.WriteString(c.Insert)
		pos = c.To
	}
	b.WriteString(doc[pos:])
	return b.String(), nil
}

// Invert returns the change set that undoes cs. doc is the pre-edit document.
func (cs ChangeSet) Invert(doc string) ChangeSet {
	inv := ChangeSet{Length: cs.NewLength()}
	delta := 0
	for _, c := range cs.Changes {
		from := c.From + delta
		inv.Changes = append(inv.Changes, Change{
			From:   from,
			To:     from + len(c.Insert),
			Insert: doc[c.From:c.To],
		})
		delta += len(c.Insert) - (c.To - c.From)
	}
	return inv
}
