// Package analysis implements rule-based detection passes over prose.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sprite-ai/margin/internal/model"
)

// Finding is a single detection attached to a byte range of the document.
type Finding struct {
	Pass       string // which pass produced this
	Type       model.Type
	Line       int // 1-based line of From
	From       int
	To         int
	Text       string
	Message    string
	Suggestion string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] line %d: %s", f.Pass, f.Line, f.Message)
}

// Results holds all findings from running analysis passes.
type Results struct {
	Findings []Finding
}

// ByType returns findings grouped by annotation type.
func (r *Results) ByType() map[model.Type][]Finding {
	m := make(map[model.Type][]Finding)
	for _, f := range r.Findings {
		m[f.Type] = append(m[f.Type], f)
	}
	return m
}

// Summary returns a one-line summary of findings.
func (r *Results) Summary() string {
	if len(r.Findings) == 0 {
		return "No issues found"
	}

	counts := make(map[model.Type]int)
	for _, f := range r.Findings {
		counts[f.Type]++
	}

	var parts []string
	for _, t := range []model.Type{model.TypePassive, model.TypeConsistency, model.TypeStyle} {
		if c := counts[t]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, t))
		}
	}
	return strings.Join(parts, ", ")
}

// Annotations converts the findings into annotation records. A nil newID
// uses random UUIDs.
func (r *Results) Annotations(newID func() string) []model.Annotation {
	if newID == nil {
		newID = uuid.NewString
	}
	anns := make([]model.Annotation, 0, len(r.Findings))
	for _, f := range r.Findings {
		anns = append(anns, model.Annotation{
			ID:          newID(),
			Type:        f.Type,
			From:        f.From,
			To:          f.To,
			MatchedText: f.Text,
			Message:     f.Message,
			Suggestion:  f.Suggestion,
		})
	}
	return anns
}

// Pass analyzes a document and returns findings.
type Pass func(doc string) []Finding

// PassNames maps pass names (for --skip) to their functions.
var PassNames = map[string]Pass{
	"passive":    PassivePass,
	"repetition": RepetitionPass,
	"filler":     FillerPass,
	"long":       LongSentencePass,
}

// Names returns the pass names in a stable order.
func Names() []string {
	names := make([]string, 0, len(PassNames))
	for name := range PassNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes all passes (or a subset) and returns the findings ordered by
// position. Unknown names in skip are ignored.
func Run(doc string, skip []string) *Results {
	skipSet := make(map[string]bool)
	for _, s := range skip {
		skipSet[s] = true
	}

	results := &Results{}

	for _, name := range Names() {
		if skipSet[name] {
			continue
		}
		results.Findings = append(results.Findings, PassNames[name](doc)...)
	}

	sort.SliceStable(results.Findings, func(i, j int) bool {
		return results.Findings[i].From < results.Findings[j].From
	})
	return results
}

// lineAt returns the 1-based line number of offset.
func lineAt(doc string, offset int) int {
	return strings.Count(doc[:offset], "\n") + 1
}
