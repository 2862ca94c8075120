// Package store keeps annotation state and critique conversations per
// document path, and persists them as one JSON document.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sprite-ai/margin/internal/model"
)

// RootKey holds state that is not tied to a particular file.
const RootKey = "__root__"

// ErrAlreadyLinked is returned when a message's annotation ids are set twice.
var ErrAlreadyLinked = errors.New("message annotations already linked")

// Snapshot is the persisted shape of the store.
type Snapshot struct {
	Files    map[string]model.FileState     `json:"files"`
	Sessions map[string][]model.ChatMessage `json:"sessions"`
}

// Store is an in-memory, concurrency-safe map of per-path state.
type Store struct {
	mu       sync.RWMutex
	files    map[string]model.FileState
	sessions map[string][]model.ChatMessage
	onChange func()
}

// New returns an empty store.
func New() *Store {
	return &Store{
		files:    make(map[string]model.FileState),
		sessions: make(map[string][]model.ChatMessage),
	}
}

// OnChange registers fn to run after every mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func key(path string) string {
	if path == "" {
		return RootKey
	}
	return path
}

// Paths returns every path with stored annotations, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// File returns a copy of the state stored for path.
func (s *Store) File(path string) model.FileState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fs := s.files[key(path)]
	fs.Annotations = append([]model.Annotation(nil), fs.Annotations...)
	return fs
}

// Active returns the active annotations for path.
func (s *Store) Active(path string) []model.Annotation {
	return s.File(path).ActiveSet()
}

// Archive returns the applied and dismissed annotations for path.
func (s *Store) Archive(path string) []model.Annotation {
	return s.File(path).ArchiveSet()
}

// Mode returns the analysis mode last used for path.
func (s *Store) Mode(path string) string {
	return s.File(path).Mode
}

// SetMode records the analysis mode for path.
func (s *Store) SetMode(path, mode string) {
	s.update(path, func(fs *model.FileState) { fs.Mode = mode })
}

// AddAnalysis appends annotations whose ids are not already stored.
func (s *Store) AddAnalysis(path, mode string, anns []model.Annotation) {
	s.update(path, func(fs *model.FileState) {
		if mode != "" {
			fs.Mode = mode
		}
		seen := make(map[string]bool, len(fs.Annotations))
		for _, a := range fs.Annotations {
			seen[a.ID] = true
		}
		for _, a := range anns {
			if !seen[a.ID] {
				fs.Annotations = append(fs.Annotations, a)
				seen[a.ID] = true
			}
		}
	})
}

// ReplaceActive swaps the active set for path, leaving the archive as is.
func (s *Store) ReplaceActive(path string, active []model.Annotation) {
	s.update(path, func(fs *model.FileState) {
		ids := make(map[string]bool, len(active))
		for _, a := range active {
			ids[a.ID] = true
		}
		out := make([]model.Annotation, 0, len(active)+len(fs.Annotations))
		for _, a := range active {
			a.Applied, a.Dismissed, a.Auto = false, false, false
			out = append(out, a)
		}
		for _, a := range fs.Annotations {
			if !a.Active() && !ids[a.ID] {
				out = append(out, a)
			}
		}
		fs.Annotations = out
	})
}

// ArchiveRecords stores applied or dismissed records, replacing any
// existing entry with the same id.
func (s *Store) ArchiveRecords(path string, recs []model.Annotation) {
	s.update(path, func(fs *model.FileState) {
		for _, rec := range recs {
			replaced := false
			for i := range fs.Annotations {
				if fs.Annotations[i].ID == rec.ID {
					fs.Annotations[i] = rec
					replaced = true
					break
				}
			}
			if !replaced {
				fs.Annotations = append(fs.Annotations, rec)
			}
		}
	})
}

// Restore clears the terminal flags of the archived records with ids.
func (s *Store) Restore(path string, ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.update(path, func(fs *model.FileState) {
		for i := range fs.Annotations {
			a := &fs.Annotations[i]
			if want[a.ID] {
				a.Applied, a.Dismissed, a.Auto = false, false, false
			}
		}
	})
}

// ClearArchive drops every applied or dismissed record for path and
// returns how many were removed.
func (s *Store) ClearArchive(path string) int {
	removed := 0
	s.update(path, func(fs *model.FileState) {
		kept := fs.Annotations[:0]
		for _, a := range fs.Annotations {
			if a.Active() {
				kept = append(kept, a)
			} else {
				removed++
			}
		}
		fs.Annotations = kept
	})
	return removed
}

// AppendMessage adds a message to the conversation for path.
func (s *Store) AppendMessage(path string, msg model.ChatMessage) {
	s.mu.Lock()
	k := key(path)
	s.sessions[k] = append(s.sessions[k], msg)
	s.mu.Unlock()
	s.changed()
}

// LinkAnnotations records the annotations produced by a message. Links are
// written once; a second call for the same message fails.
func (s *Store) LinkAnnotations(path, msgID string, ids []string) error {
	s.mu.Lock()
	msgs := s.sessions[key(path)]
	idx := -1
	for i := range msgs {
		if msgs[i].ID == msgID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("message %s not found", msgID)
	}
	if msgs[idx].AnnotationIDs != nil {
		s.mu.Unlock()
		return fmt.Errorf("link %s: %w", msgID, ErrAlreadyLinked)
	}
	msgs[idx].AnnotationIDs = append([]string{}, ids...)
	s.mu.Unlock()
	s.changed()
	return nil
}

// Messages returns a copy of the conversation for path.
func (s *Store) Messages(path string) []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ChatMessage(nil), s.sessions[key(path)]...)
}

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Files:    make(map[string]model.FileState, len(s.files)),
		Sessions: make(map[string][]model.ChatMessage, len(s.sessions)),
	}
	for k, fs := range s.files {
		fs.Annotations = append([]model.Annotation(nil), fs.Annotations...)
		snap.Files[k] = fs
	}
	for k, msgs := range s.sessions {
		snap.Sessions[k] = append([]model.ChatMessage(nil), msgs...)
	}
	return snap
}

// Load replaces the store contents with snap. It does not notify OnChange.
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]model.FileState, len(snap.Files))
	for k, fs := range snap.Files {
		s.files[k] = fs
	}
	s.sessions = make(map[string][]model.ChatMessage, len(snap.Sessions))
	for k, msgs := range snap.Sessions {
		s.sessions[k] = msgs
	}
}

func (s *Store) update(path string, fn func(fs *model.FileState)) {
	s.mu.Lock()
	k := key(path)
	fs := s.files[k]
	fn(&fs)
	s.files[k] = fs
	s.mu.Unlock()
	s.changed()
}
