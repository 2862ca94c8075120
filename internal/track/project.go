package track

import (
	"sort"

	"github.com/sprite-ai/margin/internal/model"
)

// Decoration is one highlighted range ready for rendering.
type Decoration struct {
	From       int
	To         int
	ID         string
	Type       model.Type
	Message    string
	Suggestion string
}

// Project turns active annotations into decorations. Ranges are clamped to
// the document, zero-width ranges are skipped and the result is ordered by
// start offset, ties keeping input order. Overlapping ranges are not merged.
func Project(active []model.Annotation, docLen int) []Decoration {
	decos := make([]Decoration, 0, len(active))
	for _, a := range active {
		from := clamp(a.From, 0, docLen)
		to := clamp(a.To, 0, docLen)
		if to <= from {
			continue
		}
		decos = append(decos, Decoration{
			From:       from,
			To:         to,
			ID:         a.ID,
			Type:       a.Type,
			Message:    a.Message,
			Suggestion: a.Suggestion,
		})
	}
	sort.SliceStable(decos, func(i, j int) bool { return decos[i].From < decos[j].From })
	return decos
}

// At returns the decorations covering offset pos.
func At(decos []Decoration, pos int) []Decoration {
	var out []Decoration
	for _, d := range decos {
		if d.From > pos {
			break
		}
		if pos < d.To {
			out = append(out, d)
		}
	}
	return out
}
