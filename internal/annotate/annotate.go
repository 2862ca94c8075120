// Package annotate turns a completed critique response into annotation
// records positioned against a document.
package annotate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sprite-ai/margin/internal/extract"
	"github.com/sprite-ai/margin/internal/locate"
	"github.com/sprite-ai/margin/internal/model"
)

// Options controls how annotations are built.
type Options struct {
	// Type overrides the heuristic classification when set.
	Type *model.Type
	// NewID generates annotation ids. Defaults to random UUIDs.
	NewID func() string
}

// Result holds the annotations built from one response.
type Result struct {
	Annotations []model.Annotation
	Dropped     int // quotes that could not be located in the document
	Duplicates  int // quotes resolving to an already-annotated range
}

type rangeKey struct{ from, to int }

// Build extracts quotes from response, locates each in doc and returns one
// annotation per located quote. It has no side effects.
func Build(response, doc string, opts Options) Result {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var res Result
	seen := make(map[rangeKey]bool)

	for _, q := range extract.Extract(response) {
		if extract.IsSuggestion(q) {
			continue
		}

		from, to, ok := locate.Range(q.Text, doc)
		if !ok {
			res.Dropped++
			continue
		}
		key := rangeKey{from, to}
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true

		typ := extract.Classify(q.ContextBefore)
		if opts.Type != nil {
			typ = *opts.Type
		}

		msg := extract.Message(response, q)
		if msg == "" {
			msg = FallbackMessage(typ)
		}
		suggestion, _ := extract.Suggestion(q.ContextAfter)

		res.Annotations = append(res.Annotations, model.Annotation{
			ID:          newID(),
			Type:        typ,
			From:        from,
			To:          to,
			MatchedText: q.Text,
			Message:     msg,
			Suggestion:  suggestion,
		})
	}

	return res
}

// FallbackMessage is used when the response carries no usable explanation.
func FallbackMessage(t model.Type) string {
	return fmt.Sprintf("Possible %s issue", t)
}
