package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/margin/internal/model"
)

var (
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

	// Weak intensifiers and hedges that can usually be cut.
	fillerPattern = regexp.MustCompile(`(?i)\b(?:very|really|just|quite|rather|somewhat|basically|actually|literally|totally|simply|extremely)\b`)

	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// maxSentenceWords is the length above which a sentence is flagged.
const maxSentenceWords = 40

// RepetitionPass flags a word immediately repeated ("the the").
func RepetitionPass(doc string) []Finding {
	var findings []Finding

	words := wordPattern.FindAllStringIndex(doc, -1)
	for i := 1; i < len(words); i++ {
		prev, cur := words[i-1], words[i]
		if strings.TrimSpace(doc[prev[1]:cur[0]]) != "" {
			continue
		}
		a, b := doc[prev[0]:prev[1]], doc[cur[0]:cur[1]]
		if !strings.EqualFold(a, b) || isNumber(a) {
			continue
		}
		findings = append(findings, Finding{
			Pass:       "repetition",
			Type:       model.TypeConsistency,
			Line:       lineAt(doc, prev[0]),
			From:       prev[0],
			To:         cur[1],
			Text:       doc[prev[0]:cur[1]],
			Message:    fmt.Sprintf("Repeated word %q", a),
			Suggestion: a,
		})
		i++ // "the the the" reports once per pair
	}

	return findings
}

// FillerPass flags weak intensifiers.
func FillerPass(doc string) []Finding {
	var findings []Finding

	for _, m := range fillerPattern.FindAllStringIndex(doc, -1) {
		word := doc[m[0]:m[1]]
		findings = append(findings, Finding{
			Pass:    "filler",
			Type:    model.TypeStyle,
			Line:    lineAt(doc, m[0]),
			From:    m[0],
			To:      m[1],
			Text:    word,
			Message: fmt.Sprintf("Filler word %q weakens the sentence", strings.ToLower(word)),
		})
	}

	return findings
}

// LongSentencePass flags sentences longer than maxSentenceWords words.
func LongSentencePass(doc string) []Finding {
	var findings []Finding

	for _, m := range sentencePattern.FindAllStringIndex(doc, -1) {
		// Trim leading whitespace so the range starts on the first word.
		start := m[0] + len(doc[m[0]:m[1]]) - len(strings.TrimLeft(doc[m[0]:m[1]], " \t"))
		sentence := doc[start:m[1]]
		n := len(wordPattern.FindAllStringIndex(sentence, -1))
		if n <= maxSentenceWords {
			continue
		}
		findings = append(findings, Finding{
			Pass:    "long",
			Type:    model.TypeStyle,
			Line:    lineAt(doc, start),
			From:    start,
			To:      m[1],
			Text:    sentence,
			Message: fmt.Sprintf("Long sentence (%d words)", n),
		})
	}

	return findings
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
