// Package reconcile turns edits made outside margin (a patch, a new version
// of the file on disk) into change sets so stored annotations can follow
// them.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/sprite-ai/margin/internal/editor"
)

// ErrMismatch is returned when a patch's context or removed lines do not
// match the document.
var ErrMismatch = errors.New("patch does not match document")

// File is one file of a parsed patch.
type File struct {
	OldName      string
	NewName      string
	IsNew        bool
	IsDeleted    bool
	IsRenamed    bool
	IsBinary     bool
	Fragments    []*gitdiff.TextFragment
	AddedLines   int
	DeletedLines int
}

// Name returns the display name for the file.
func (f *File) Name() string {
	if f.IsRenamed {
		return fmt.Sprintf("%s -> %s", f.OldName, f.NewName)
	}
	if f.IsDeleted || f.NewName == "" {
		return f.OldName
	}
	return f.NewName
}

// Parse reads a unified diff.
func Parse(raw string) ([]*File, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing patch: %w", err)
	}

	var files []*File
	for _, f := range parsed {
		pf := &File{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
			Fragments: f.TextFragments,
		}
		for _, frag := range f.TextFragments {
			pf.AddedLines += int(frag.LinesAdded)
			pf.DeletedLines += int(frag.LinesDeleted)
		}
		files = append(files, pf)
	}
	return files, nil
}

// FromPatch converts a single-file unified diff into a change set against
// doc, the text the patch was made from.
func FromPatch(doc, patch string) (editor.ChangeSet, error) {
	files, err := Parse(patch)
	if err != nil {
		return editor.ChangeSet{}, err
	}
	if len(files) != 1 {
		return editor.ChangeSet{}, fmt.Errorf("patch touches %d files, want 1", len(files))
	}
	return FileChanges(doc, files[0])
}

// FileChanges converts the fragments of f into a change set against doc.
// Every context and removed line must match doc exactly.
func FileChanges(doc string, f *File) (editor.ChangeSet, error) {
	if f.IsBinary {
		return editor.ChangeSet{}, fmt.Errorf("%s: binary patch", f.Name())
	}

	starts := lineStarts(doc)
	var changes []editor.Change
	last := 0

	for _, frag := range f.Fragments {
		line := int(frag.OldPosition) - 1
		if frag.OldLines == 0 {
			// Pure additions name the line they follow.
			line = int(frag.OldPosition)
		}
		if line < 0 || line >= len(starts) {
			return editor.ChangeSet{}, fmt.Errorf("%w: fragment at line %d is past the end", ErrMismatch, frag.OldPosition)
		}
		pos := starts[line]
		if pos < last {
			return editor.ChangeSet{}, fmt.Errorf("%w: fragments out of order at line %d", ErrMismatch, frag.OldPosition)
		}

		var cur *editor.Change
		flush := func() {
			if cur != nil {
				changes = append(changes, *cur)
				cur = nil
			}
		}

		for _, l := range frag.Lines {
			switch l.Op {
			case gitdiff.OpContext:
				flush()
				if !strings.HasPrefix(doc[pos:], l.Line) {
					return editor.ChangeSet{}, mismatch(frag, l.Line)
				}
				pos += len(l.Line)
			case gitdiff.OpDelete:
				if !strings.HasPrefix(doc[pos:], l.Line) {
					return editor.ChangeSet{}, mismatch(frag, l.Line)
				}
				if cur == nil {
					cur = &editor.Change{From: pos, To: pos}
				}
				pos += len(l.Line)
				cur.To = pos
			case gitdiff.OpAdd:
				if cur == nil {
					cur = &editor.Change{From: pos, To: pos}
				}
				cur.Insert += l.Line
			}
		}
		flush()
		last = pos
	}

	cs, err := editor.NewChangeSet(len(doc), changes...)
	if err != nil {
		return editor.ChangeSet{}, fmt.Errorf("%w: %v", ErrMismatch, err)
	}
	return cs, nil
}

func mismatch(frag *gitdiff.TextFragment, line string) error {
	return fmt.Errorf("%w: hunk @@ -%d,%d @@ expected %q", ErrMismatch, frag.OldPosition, frag.OldLines, strings.TrimSuffix(line, "\n"))
}

// lineStarts returns the byte offset of every line start. A trailing
// newline yields a final empty line at len(doc).
func lineStarts(doc string) []int {
	starts := []int{0}
	for i := 0; i < len(doc); i++ {
		if doc[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}
