package reconcile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/track"
)

// FromContents diffs two versions of a document and returns the change set
// taking old to new.
func FromContents(old, new string) editor.ChangeSet {
	if old == new {
		return editor.ChangeSet{Length: len(old)}
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(old, new, false))

	var changes []editor.Change
	var cur *editor.Change
	pos := 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if cur != nil {
				changes = append(changes, *cur)
				cur = nil
			}
			pos += len(d.Text)
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &editor.Change{From: pos, To: pos}
			}
			pos += len(d.Text)
			cur.To = pos
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &editor.Change{From: pos, To: pos}
			}
			cur.Insert += d.Text
		}
	}
	if cur != nil {
		changes = append(changes, *cur)
	}

	cs, err := editor.NewChangeSet(len(old), changes...)
	if err != nil {
		// Fall back to replacing the whole document.
		cs, _ = editor.Replace(len(old), 0, len(old), new)
	}
	return cs
}

// Remap moves anns through cs. Annotations whose range the change
// overlaps are returned as stale, in their pre-edit positions; the rest
// are returned remapped and clamped to the new document.
func Remap(anns []model.Annotation, cs editor.ChangeSet) (kept, stale []model.Annotation) {
	var live []model.Annotation
	for _, a := range anns {
		if cs.Touches(a.From, a.To) {
			stale = append(stale, a)
			continue
		}
		live = append(live, a)
	}
	tr := track.New(live)
	tr.Map(cs)
	tr.Clamp(cs.NewLength())
	return tr.Annotations(), stale
}

// GitShow returns the content of path at revision rev.
func GitShow(ctx context.Context, rev, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "git", "show", rev+":./"+filepath.Base(abs))
	cmd.Dir = filepath.Dir(abs)
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", rev, path, err)
	}
	return string(out), nil
}
