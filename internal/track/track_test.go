package track

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/model"
)

func ann(id string, from, to int, text string) model.Annotation {
	return model.Annotation{ID: id, Type: model.TypeStyle, From: from, To: to, MatchedText: text, Message: "m"}
}

func changes(t *testing.T, length int, cs ...editor.Change) editor.ChangeSet {
	t.Helper()
	set, err := editor.NewChangeSet(length, cs...)
	require.NoError(t, err)
	return set
}

func TestMapRandomEditsKeepRangesValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	docLen := 200
	tr := New([]model.Annotation{
		ann("a", 0, 10, ""),
		ann("b", 50, 80, ""),
		ann("c", 120, 120, ""),
		ann("d", 190, 200, ""),
	})

	for i := 0; i < 500; i++ {
		from := rng.Intn(docLen + 1)
		to := from + rng.Intn(docLen-from+1)
		insert := make([]byte, rng.Intn(20))
		for j := range insert {
			insert[j] = 'x'
		}
		cs := changes(t, docLen, editor.Change{From: from, To: to, Insert: string(insert)})
		tr.Map(cs)
		docLen = cs.NewLength()

		for _, a := range tr.Annotations() {
			if a.From < 0 || a.From > a.To || a.To > docLen {
				t.Fatalf("step %d: annotation %s has range [%d,%d) in doc of %d", i, a.ID, a.From, a.To, docLen)
			}
		}
	}
}

func TestMapInsertAtStartShifts(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 5, 10, "")})
	tr.Map(changes(t, 20, editor.Change{From: 5, To: 5, Insert: "abc"}))

	a, _ := tr.Get("a")
	assert.Equal(t, 8, a.From)
	assert.Equal(t, 13, a.To)
}

func TestMapInsertAtEndDoesNotGrow(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 5, 10, "")})
	tr.Map(changes(t, 20, editor.Change{From: 10, To: 10, Insert: "abc"}))

	a, _ := tr.Get("a")
	assert.Equal(t, 5, a.From)
	assert.Equal(t, 10, a.To)
}

func TestMapInsertInsideGrows(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 5, 10, "")})
	tr.Map(changes(t, 20, editor.Change{From: 7, To: 7, Insert: "abc"}))

	a, _ := tr.Get("a")
	assert.Equal(t, 5, a.From)
	assert.Equal(t, 13, a.To)
}

func TestMapDeleteBeforeShiftsLeft(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 5, 10, "")})
	tr.Map(changes(t, 20, editor.Change{From: 0, To: 3}))

	a, _ := tr.Get("a")
	assert.Equal(t, 2, a.From)
	assert.Equal(t, 7, a.To)
}

func TestZeroWidthSurvivesAndReexpandsOnUndo(t *testing.T) {
	doc := "The quick brown fox."
	text := "quick brown"
	tr := New([]model.Annotation{ann("a", 4, 15, text)})

	del := changes(t, len(doc), editor.Change{From: 4, To: 15})
	tr.Map(del)
	a, ok := tr.Get("a")
	require.True(t, ok, "collapsed annotation stays tracked")
	assert.Equal(t, 4, a.From)
	assert.Equal(t, 4, a.To)

	tr.Map(del.Invert(doc))
	a, _ = tr.Get("a")
	assert.Equal(t, 4, a.From)
	assert.Equal(t, 15, a.To)
}

func TestZeroWidthDoesNotExpandForOtherText(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 4, 4, "quick brown")})
	tr.Map(changes(t, 9, editor.Change{From: 4, To: 4, Insert: "slow"}))

	a, _ := tr.Get("a")
	assert.Equal(t, a.From, a.To)
}

func TestMergePreservesLivePositions(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 10, 20, "x")})
	tr.Map(changes(t, 30, editor.Change{From: 0, To: 0, Insert: "12345"}))

	tr.Merge([]model.Annotation{
		ann("b", 1, 2, "y"),
		ann("a", 10, 20, "x"), // stale copy from an older snapshot
	})

	got := tr.Annotations()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 1, got[0].From)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, 15, got[1].From)
	assert.Equal(t, 25, got[1].To)
}

func TestMergeDropsMissing(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 0, 1, ""), ann("b", 1, 2, "")})
	tr.Merge([]model.Annotation{ann("b", 1, 2, "")})
	assert.Equal(t, []string{"b"}, tr.IDs())
}

func TestAddRemove(t *testing.T) {
	tr := New(nil)
	tr.Add(ann("a", 0, 1, ""), ann("a", 5, 6, ""), ann("b", 2, 3, ""))
	assert.Equal(t, 2, tr.Len())

	a, ok := tr.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 0, a.From)
	_, ok = tr.Remove("a")
	assert.False(t, ok)
}

func TestAnnotationsReturnsCopy(t *testing.T) {
	tr := New([]model.Annotation{ann("a", 0, 1, "")})
	got := tr.Annotations()
	got[0].From = 99
	a, _ := tr.Get("a")
	assert.Equal(t, 0, a.From)
}

func TestProject(t *testing.T) {
	decos := Project([]model.Annotation{
		ann("late", 10, 14, ""),
		ann("empty", 3, 3, ""),
		ann("first", 2, 6, ""),
		ann("tie", 2, 4, ""),
		ann("clamped", 18, 40, ""),
	}, 20)

	var ids []string
	for _, d := range decos {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"first", "tie", "late", "clamped"}, ids)
	assert.Equal(t, 20, decos[3].To)

	assert.Len(t, At(decos, 3), 2)
	assert.Empty(t, At(decos, 8))
}
