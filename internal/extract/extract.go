// Package extract pulls quoted excerpts and their labels out of free-form
// critique text. It knows nothing about the document being critiqued.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sprite-ai/margin/internal/model"
)

const (
	contextBeforeRunes = 200
	contextAfterRunes  = 400
	messageWindowRunes = 400
	messageMaxRunes    = 200
	ellipsis           = "..."
)

// Quote is one quoted passage found in a response.
type Quote struct {
	Text          string
	ContextBefore string
	ContextAfter  string
	Index         int // byte offset of Text within the response
}

// Quote patterns, one per quotation-mark pair. RE2 has no backreferences so
// each pair gets its own expression. Straight single quotes are scanned by
// singleQuoteSpans instead, since RE2 cannot check the neighbouring runes.
var quotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"([^"]{10,300})"`),
	regexp.MustCompile(`“([^“”]{10,300})”`),
	regexp.MustCompile(`‘([^‘’]{10,300})’`),
}

const (
	minQuoteRunes = 10
	maxQuoteRunes = 300
)

var (
	suggestionPattern = regexp.MustCompile(`(?i)SUGGESTION:\s*(?:"([^"]{5,400})"|“([^“”]{5,400})”|‘([^‘’]{5,400})’|'([^'\n]{5,400})')`)
	labelPattern      = regexp.MustCompile(`(?i)(?:ISSUE|PROBLEM|WHY):`)
	suggestionLabel   = regexp.MustCompile(`(?i)SUGGESTION:\s*$`)
	bareLabel         = regexp.MustCompile(`^[A-Z][A-Z _-]*:$`)
)

// Classification keywords, checked in order; the first rule that matches wins.
var classifyRules = []struct {
	typ      model.Type
	keywords []string
}{
	{model.TypePassive, []string{"passive"}},
	{model.TypeConsistency, []string{"consistency", "character", "timeline", "repeated", "contradiction"}},
}

type span struct {
	start, end         int // whole match including quote marks
	textStart, textEnd int
}

// Extract returns every quoted passage in response, ordered by position.
// Double and curly quotes win over straight single quotes when they overlap,
// so an apostrophe never swallows a properly quoted passage.
func Extract(response string) []Quote {
	var primary []span
	for _, pat := range quotePatterns {
		for _, m := range pat.FindAllStringSubmatchIndex(response, -1) {
			primary = append(primary, span{start: m[0], end: m[1], textStart: m[2], textEnd: m[3]})
		}
	}

	kept := earliest(primary)
	for _, s := range singleQuoteSpans(response) {
		if !overlapsAny(s, kept) {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	quotes := make([]Quote, 0, len(kept))
	for _, s := range kept {
		quotes = append(quotes, Quote{
			Text:          response[s.textStart:s.textEnd],
			ContextBefore: runesBefore(response, s.start, contextBeforeRunes),
			ContextAfter:  runesAfter(response, s.end, contextAfterRunes),
			Index:         s.textStart,
		})
	}
	if len(quotes) == 0 {
		return nil
	}
	return quotes
}

// earliest orders spans by position and drops any that overlap one already
// kept. On equal starts the longer span wins.
func earliest(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	var kept []span
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		lastEnd = s.end
		kept = append(kept, s)
	}
	return kept
}

func overlapsAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.start < o.end && o.start < s.end {
			return true
		}
	}
	return false
}

// singleQuoteSpans finds passages in straight single quotes. An opening mark
// must not follow a letter or digit and a closing mark must not precede one,
// which rules out contractions like "don't" and "it's". A passage never
// crosses a line break.
func singleQuoteSpans(response string) []span {
	var spans []span
	for i := 0; i < len(response); i++ {
		if response[i] != '\'' || wordRuneBefore(response, i) {
			continue
		}
		end := closingSingleQuote(response, i+1)
		if end < 0 {
			continue
		}
		n := utf8.RuneCountInString(response[i+1 : end])
		if n < minQuoteRunes || n > maxQuoteRunes {
			continue
		}
		spans = append(spans, span{start: i, end: end + 1, textStart: i + 1, textEnd: end})
		i = end
	}
	return spans
}

// closingSingleQuote returns the byte offset of the first closing mark at or
// after from, or -1 when a line break or the end of input comes first.
func closingSingleQuote(response string, from int) int {
	for j := from; j < len(response); j++ {
		switch response[j] {
		case '\n':
			return -1
		case '\'':
			if !wordRuneAfter(response, j+1) {
				return j
			}
		}
	}
	return -1
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordRuneAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Classify picks an annotation type from the text preceding a quote.
func Classify(contextBefore string) model.Type {
	lower := strings.ToLower(contextBefore)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.typ
			}
		}
	}
	return model.TypeStyle
}

// Suggestion finds the first SUGGESTION: "..." block in the text following a quote.
func Suggestion(contextAfter string) (string, bool) {
	m := suggestionPattern.FindStringSubmatch(contextAfter)
	if m == nil {
		return "", false
	}
	for _, group := range m[1:] {
		if group != "" {
			return group, true
		}
	}
	return "", false
}

// IsSuggestion reports whether the quote is itself the payload of a
// SUGGESTION: label rather than an excerpt of the document.
func IsSuggestion(q Quote) bool {
	before := strings.TrimRight(q.ContextBefore, "\"“‘'")
	return suggestionLabel.MatchString(before)
}

// Message derives a one-line explanation for the quote at q.Index.
// A labeled ISSUE:/PROBLEM:/WHY: line wins; otherwise the last sentence
// before the quote is used.
func Message(response string, q Quote) string {
	quoteStart := q.Index
	if quoteStart > 0 {
		// Step back over the opening quotation mark.
		_, size := utf8.DecodeLastRuneInString(response[:quoteStart])
		quoteStart -= size
	}
	window := runesBefore(response, quoteStart, messageWindowRunes)
	windowStart := quoteStart - len(window)

	if locs := labelPattern.FindAllStringIndex(window, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		rest := response[windowStart+last[1]:]
		if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
			rest = rest[:nl]
		}
		if msg := strings.TrimSpace(rest); msg != "" {
			return truncate(msg, messageMaxRunes)
		}
	}

	return truncate(lastSentence(window), messageMaxRunes)
}

func lastSentence(text string) string {
	parts := splitSentences(text)
	for i := len(parts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(parts[i])
		if bareLabel.MatchString(s) {
			// "PASSIVE:" on its own says nothing.
			return ""
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func splitSentences(text string) []string {
	var parts []string
	start := 0
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '\n':
			parts = append(parts, text[start:i])
			start = i + 1
		case '.', '!', '?':
			if text[i+1] == ' ' {
				parts = append(parts, text[start:i+1])
				start = i + 2
			}
		}
	}
	return append(parts, text[start:])
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + ellipsis
}

// runesBefore returns up to n runes of s ending at byte offset end.
func runesBefore(s string, end, n int) string {
	start := end
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	return s[start:end]
}

// runesAfter returns up to n runes of s starting at byte offset start.
func runesAfter(s string, start, n int) string {
	end := start
	for i := 0; i < n && end < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return s[start:end]
}
