// Package locate resolves quoted excerpts to byte offsets in a document.
//
// Matching runs in two passes. The first is an exact substring search where
// the first occurrence wins, even if the quote appears more than once. The
// second tolerates whitespace drift between the quote and the document: runs
// of whitespace are collapsed on both sides before comparing. Quotes that
// fail both passes are reported as not found and callers drop them.
package locate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minFuzzyWords   = 3
	anchorWords     = 4
	sliceMultiplier = 2
)

// Find returns the offset of the first match of quote in doc.
func Find(quote, doc string) (int, bool) {
	if quote == "" {
		return 0, false
	}
	if i := strings.Index(doc, quote); i >= 0 {
		return i, true
	}
	return findNormalized(quote, doc)
}

// Range resolves quote to a half-open byte range of doc. Exact matches span
// len(quote) bytes. Whitespace-tolerant matches are measured against the
// document so the range covers the actual text; when only the leading words
// matched, the range falls back to len(quote) bytes clamped to the document.
func Range(quote, doc string) (from, to int, ok bool) {
	if quote == "" {
		return 0, 0, false
	}
	if i := strings.Index(doc, quote); i >= 0 {
		return i, i + len(quote), true
	}
	i, ok := findNormalized(quote, doc)
	if !ok {
		return 0, 0, false
	}
	if end, consumed := consume(doc, i, Normalize(quote)); consumed {
		return i, end, true
	}
	return i, min(i+len(quote), len(doc)), true
}

// Normalize collapses every whitespace run to a single space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func findNormalized(quote, doc string) (int, bool) {
	norm := Normalize(quote)
	words := strings.Fields(norm)
	if len(words) < minFuzzyWords {
		// Too ambiguous to match loosely.
		return 0, false
	}

	first := words[0]
	anchor := ""
	if len(words) >= anchorWords {
		anchor = strings.Join(words[:anchorWords], " ")
	}

	for offset := 0; offset < len(doc); {
		idx := strings.Index(doc[offset:], first)
		if idx < 0 {
			break
		}
		pos := offset + idx

		end := min(pos+sliceMultiplier*len(norm), len(doc))
		candidate := Normalize(doc[pos:end])
		if strings.HasPrefix(candidate, norm) {
			return pos, true
		}
		if anchor != "" && strings.HasPrefix(candidate, anchor) {
			return pos, true
		}

		offset = pos + len(first)
	}
	return 0, false
}

// consume walks doc from start, matching norm with any whitespace run in doc
// standing for one space in norm. It returns the end offset and whether all
// of norm was matched.
func consume(doc string, start int, norm string) (int, bool) {
	i, j := start, 0
	for j < len(norm) && i < len(doc) {
		if norm[j] == ' ' {
			r, size := utf8.DecodeRuneInString(doc[i:])
			if !unicode.IsSpace(r) {
				return i, false
			}
			for i < len(doc) {
				r, size = utf8.DecodeRuneInString(doc[i:])
				if !unicode.IsSpace(r) {
					break
				}
				i += size
			}
			j++
			continue
		}
		if doc[i] != norm[j] {
			return i, false
		}
		i++
		j++
	}
	return i, j == len(norm)
}
