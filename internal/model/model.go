// Package model defines the core data types shared across margin.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type categorizes an annotation. It only affects presentation and grouping.
type Type int

const (
	TypeStyle Type = iota
	TypePassive
	TypeConsistency
	TypeCritique
	TypeCustom
)

func (t Type) String() string {
	switch t {
	case TypeStyle:
		return "style"
	case TypePassive:
		return "passive"
	case TypeConsistency:
		return "consistency"
	case TypeCritique:
		return "critique"
	case TypeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseType converts a type name back into a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "style":
		return TypeStyle, nil
	case "passive":
		return TypePassive, nil
	case "consistency":
		return TypeConsistency, nil
	case "critique":
		return TypeCritique, nil
	case "custom":
		return TypeCustom, nil
	default:
		return TypeStyle, fmt.Errorf("unknown annotation type %q", s)
	}
}

// MarshalJSON encodes the type by name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type name.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// State is the lifecycle state of an annotation.
type State int

const (
	StateActive State = iota
	StateApplied
	StateDismissed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateApplied:
		return "applied"
	case StateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Annotation is a typed critique attached to a half-open byte range of a document.
type Annotation struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	From        int    `json:"from"`
	To          int    `json:"to"`
	MatchedText string `json:"matchedText"`
	Message     string `json:"message"`
	Suggestion  string `json:"suggestion,omitempty"`
	Applied     bool   `json:"applied,omitempty"`
	Dismissed   bool   `json:"dismissed,omitempty"`
	Auto        bool   `json:"auto,omitempty"` // dismissed by the edit timer
}

// Active reports whether the annotation is neither applied nor dismissed.
func (a Annotation) Active() bool {
	return !a.Applied && !a.Dismissed
}

// State returns the lifecycle state derived from the terminal flags.
func (a Annotation) State() State {
	switch {
	case a.Applied:
		return StateApplied
	case a.Dismissed:
		return StateDismissed
	default:
		return StateActive
	}
}

// Len returns the width of the range.
func (a Annotation) Len() int {
	return a.To - a.From
}

// HasSuggestion reports whether a replacement text is attached.
func (a Annotation) HasSuggestion() bool {
	return a.Suggestion != ""
}

// FileState is the persisted annotation state for one document path.
type FileState struct {
	Mode        string       `json:"mode"`
	Annotations []Annotation `json:"annotations"`
}

// ActiveSet returns the annotations that are neither applied nor dismissed.
func (fs FileState) ActiveSet() []Annotation {
	var out []Annotation
	for _, a := range fs.Annotations {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out
}

// ArchiveSet returns applied and dismissed annotations.
func (fs FileState) ArchiveSet() []Annotation {
	var out []Annotation
	for _, a := range fs.Annotations {
		if !a.Active() {
			out = append(out, a)
		}
	}
	return out
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a per-file critique conversation.
type ChatMessage struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Mode          string    `json:"mode,omitempty"`
	AnnotationIDs []string  `json:"annotationIds,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
