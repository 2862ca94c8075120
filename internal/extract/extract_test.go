package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/model"
)

func TestExtractQuoteStyles(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"straight double", `See "the quick brown fox jumps" here.`, []string{"the quick brown fox jumps"}},
		{"curly double", `See “the quick brown fox jumps” here.`, []string{"the quick brown fox jumps"}},
		{"curly single", `See ‘the quick brown fox jumps’ here.`, []string{"the quick brown fox jumps"}},
		{"straight single", `See 'the quick brown fox jumps' here.`, []string{"the quick brown fox jumps"}},
		{"too short", `The word "short" is fine.`, nil},
		{"two quotes", `"first quoted passage" and "second quoted passage"`, []string{"first quoted passage", "second quoted passage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, q := range Extract(tt.response) {
				got = append(got, q.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractLengthBounds(t *testing.T) {
	nine := `"123456789"`
	ten := `"1234567890"`
	long := `"` + strings.Repeat("a", 301) + `"`
	limit := `"` + strings.Repeat("a", 300) + `"`

	assert.Empty(t, Extract(nine))
	assert.Len(t, Extract(ten), 1)
	assert.Empty(t, Extract(long))
	assert.Len(t, Extract(limit), 1)
}

func TestExtractApostrophesInsideDoubleQuotes(t *testing.T) {
	quotes := Extract(`ISSUE: tense. "She didn't know what 'it' was at all."`)
	require.Len(t, quotes, 1)
	assert.Equal(t, "She didn't know what 'it' was at all.", quotes[0].Text)
}

func TestExtractContractionsAroundDoubleQuotes(t *testing.T) {
	quotes := Extract(`Don't keep "She was seen by him walking down the path." as it's passive.`)
	require.Len(t, quotes, 1)
	assert.Equal(t, "She was seen by him walking down the path.", quotes[0].Text)
	assert.Equal(t, "Don't keep ", quotes[0].ContextBefore)
}

func TestExtractStraightSingleQuoteBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"plain", `ISSUE: passive. 'She was seen by him walking' reads flat.`, []string{"She was seen by him walking"}},
		{"contraction inside", `Consider 'she didn't know the way' here.`, []string{"she didn't know the way"}},
		{"contractions only", `It's odd that they don't notice the dog's bowl.`, nil},
		{"line break", "Consider 'the quick brown\nfox jumps' here.", nil},
		{"at end of input", `'the quick brown fox jumps'`, []string{"the quick brown fox jumps"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, q := range Extract(tt.response) {
				got = append(got, q.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContexts(t *testing.T) {
	before := strings.Repeat("b", 250)
	after := strings.Repeat("a", 450)
	response := before + `"quoted passage here"` + after

	quotes := Extract(response)
	require.Len(t, quotes, 1)
	q := quotes[0]
	assert.Len(t, q.ContextBefore, 200)
	assert.Len(t, q.ContextAfter, 400)
	assert.Equal(t, 251, q.Index)
	assert.Equal(t, "quoted passage here", response[q.Index:q.Index+len(q.Text)])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		context string
		want    model.Type
	}{
		{"This is PASSIVE voice", model.TypePassive},
		{"Timeline problem:", model.TypeConsistency},
		{"the character changes eye colour", model.TypeConsistency},
		{"A repeated phrase", model.TypeConsistency},
		{"Contradiction with chapter 2", model.TypeConsistency},
		{"passive and also a contradiction", model.TypePassive},
		{"Wordy sentence", model.TypeStyle},
		{"", model.TypeStyle},
	}
	for _, tt := range tests {
		if got := Classify(tt.context); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.context, got, tt.want)
		}
	}
}

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name   string
		after  string
		want   string
		wantOK bool
	}{
		{"straight", ` SUGGESTION: "He saw her walking."`, "He saw her walking.", true},
		{"curly", "\nSuggestion: “Rewrite it.”", "Rewrite it.", true},
		{"first wins", ` SUGGESTION: "First one" SUGGESTION: "Second one"`, "First one", true},
		{"too short", ` SUGGESTION: "abc"`, "", false},
		{"missing", ` no label here "at all, really"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Suggestion(tt.after)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessagePrefersLastLabel(t *testing.T) {
	response := "ISSUE: old issue\nWHY: the actor is hidden behind the verb\n\"She was seen by him walking.\""
	quotes := Extract(response)
	require.Len(t, quotes, 1)
	assert.Equal(t, "the actor is hidden behind the verb", Message(response, quotes[0]))
}

func TestMessageLabelOnSameLine(t *testing.T) {
	response := `PROBLEM: weak verb in "The door was opened slowly."`
	quotes := Extract(response)
	require.Len(t, quotes, 1)
	assert.Equal(t, `weak verb in "The door was opened slowly."`, Message(response, quotes[0]))
}

func TestMessageFallsBackToLastSentence(t *testing.T) {
	response := `Overall this is good. The opening drags a bit! Consider tightening "It was a dark and stormy night."`
	quotes := Extract(response)
	require.Len(t, quotes, 1)
	assert.Equal(t, "Consider tightening", Message(response, quotes[0]))
}

func TestMessageBareLabelIsEmpty(t *testing.T) {
	response := `PASSIVE: "She was seen by him walking down the path."`
	quotes := Extract(response)
	require.Len(t, quotes, 1)
	assert.Equal(t, "", Message(response, quotes[0]))
}

func TestMessageTruncates(t *testing.T) {
	response := "ISSUE: " + strings.Repeat("x", 250) + "\n\"quoted passage here\""
	quotes := Extract(response)
	require.Len(t, quotes, 1)
	msg := Message(response, quotes[0])
	assert.Equal(t, strings.Repeat("x", 200)+"...", msg)
}

func TestIsSuggestion(t *testing.T) {
	response := `PASSIVE: "She was seen by him walking down the path." SUGGESTION: "He saw her walking down the path."`
	quotes := Extract(response)
	require.Len(t, quotes, 2)
	assert.False(t, IsSuggestion(quotes[0]))
	assert.True(t, IsSuggestion(quotes[1]))
}
