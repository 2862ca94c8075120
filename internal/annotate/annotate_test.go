package annotate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/model"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ann-%d", n)
	}
}

const pathDoc = "She was seen by him walking down the path."

func TestBuildPassiveWithSuggestion(t *testing.T) {
	response := `PASSIVE: "She was seen by him walking down the path." SUGGESTION: "He saw her walking down the path."`

	res := Build(response, pathDoc, Options{NewID: sequentialIDs()})

	require.Len(t, res.Annotations, 1)
	a := res.Annotations[0]
	assert.Equal(t, model.TypePassive, a.Type)
	assert.Equal(t, 0, a.From)
	assert.Equal(t, len(pathDoc), a.To)
	assert.Equal(t, pathDoc, a.MatchedText)
	assert.Equal(t, "He saw her walking down the path.", a.Suggestion)
	assert.Equal(t, "Possible passive issue", a.Message)
	assert.Equal(t, "ann-1", a.ID)
	assert.True(t, a.Active())
	assert.Zero(t, res.Dropped)
}

func TestBuildIgnoresContractionsAroundQuote(t *testing.T) {
	response := `Don't keep "She was seen by him walking down the path." as it's passive.`

	res := Build(response, pathDoc, Options{NewID: sequentialIDs()})

	require.Len(t, res.Annotations, 1)
	assert.Equal(t, 0, res.Annotations[0].From)
	assert.Equal(t, len(pathDoc), res.Annotations[0].To)
	assert.Zero(t, res.Dropped)
}

func TestBuildUnlocatableQuoteIsDropped(t *testing.T) {
	response := `STYLE: "a sentence that does not appear" in the text.`

	res := Build(response, pathDoc, Options{})

	assert.Empty(t, res.Annotations)
	assert.Equal(t, 1, res.Dropped)
}

func TestBuildFirstOccurrenceForDuplicates(t *testing.T) {
	doc := "The cat sat. The cat   sat."
	res := Build(`The second one is redundant: "The cat sat."`, doc, Options{})

	require.Len(t, res.Annotations, 1)
	assert.Equal(t, 0, res.Annotations[0].From)
	assert.Equal(t, 12, res.Annotations[0].To)
}

func TestBuildDeduplicatesRanges(t *testing.T) {
	response := "ISSUE: wordy\n\"seen by him walking\"\nISSUE: again\n\"seen by him walking\""

	res := Build(response, pathDoc, Options{})

	require.Len(t, res.Annotations, 1)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, "wordy", res.Annotations[0].Message)
}

func TestBuildTypeOverride(t *testing.T) {
	custom := model.TypeCustom
	res := Build(`Passive here: "She was seen by him"`, pathDoc, Options{Type: &custom})

	require.Len(t, res.Annotations, 1)
	assert.Equal(t, model.TypeCustom, res.Annotations[0].Type)
}

func TestBuildUsesLabeledMessage(t *testing.T) {
	response := "ISSUE: The timeline contradicts chapter one.\n\"walking down the path\"\nSUGGESTION: \"running up the hill\""

	res := Build(response, pathDoc, Options{})

	require.Len(t, res.Annotations, 1)
	a := res.Annotations[0]
	assert.Equal(t, model.TypeConsistency, a.Type)
	assert.Equal(t, "The timeline contradicts chapter one.", a.Message)
	assert.Equal(t, "running up the hill", a.Suggestion)
	assert.Equal(t, "walking down the path", pathDoc[a.From:a.To])
}

func TestBuildGeneratesUniqueIDs(t *testing.T) {
	doc := "First sentence is here. Second sentence is here."
	res := Build(`"First sentence is here." and "Second sentence is here."`, doc, Options{})

	require.Len(t, res.Annotations, 2)
	assert.NotEqual(t, res.Annotations[0].ID, res.Annotations[1].ID)
	assert.NotEmpty(t, res.Annotations[0].ID)
}
