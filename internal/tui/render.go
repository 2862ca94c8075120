package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/margin/internal/track"
)

// docLine is one line of the document and its byte offset.
type docLine struct {
	Start int
	Text  string // without the trailing newline
}

// End returns the offset just past the line's text.
func (l docLine) End() int { return l.Start + len(l.Text) }

func splitLines(content string) []docLine {
	var lines []docLine
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, docLine{Start: start, Text: content[start:i]})
			start = i + 1
		}
	}
	return append(lines, docLine{Start: start, Text: content[start:]})
}

// lineOf returns the index of the line containing offset pos.
func lineOf(lines []docLine, pos int) int {
	for i, l := range lines {
		if pos <= l.End() {
			return i
		}
	}
	return len(lines) - 1
}

// cut returns the byte length of the longest prefix of s that is at most
// width runes.
func cut(s string, width int) int {
	n, i := 0, 0
	for i < len(s) && n < width {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
		n++
	}
	return i
}

// decorationsOn returns the decorations overlapping line l. decos is
// sorted by From.
func decorationsOn(decos []track.Decoration, l docLine) []track.Decoration {
	var out []track.Decoration
	for _, d := range decos {
		if d.From > l.End() {
			break
		}
		if d.To > l.Start && d.From < l.End() {
			out = append(out, d)
		}
	}
	return out
}

// renderDocLine renders a line with syntax colors, annotation underlines
// and, in insert mode, the caret. colors and decos are those overlapping
// the line. caret is -1 when hidden.
func renderDocLine(l docLine, colors []colorSpan, decos []track.Decoration, selected string, caret, width int) string {
	end := l.Start + cut(l.Text, width)

	var b strings.Builder
	for pos := l.Start; pos < end; {
		next := boundary(l, pos, end, colors, decos, caret)
		text := l.Text[pos-l.Start : next-l.Start]
		b.WriteString(pieceStyle(pos, colorAt(colors, pos), decos, selected, caret).Render(text))
		pos = next
	}
	if caret == l.End() && caret <= end {
		b.WriteString(caretStyle.Render(" "))
	}
	return b.String()
}

// boundary returns the first offset after pos, no later than limit, at
// which the styling may change.
func boundary(l docLine, pos, limit int, colors []colorSpan, decos []track.Decoration, caret int) int {
	edge := func(at int) {
		if at > pos && at < limit {
			limit = at
		}
	}
	for _, c := range colors {
		edge(c.From)
		edge(c.To)
	}
	for _, d := range decos {
		edge(d.From)
		edge(d.To)
	}
	switch {
	case caret == pos:
		_, w := utf8.DecodeRuneInString(l.Text[pos-l.Start:])
		limit = min(limit, pos+w)
	case caret > pos && caret < limit:
		limit = caret
	}
	return limit
}

func pieceStyle(pos int, color string, decos []track.Decoration, selected string, caret int) lipgloss.Style {
	style := lipgloss.NewStyle()
	if color != "" {
		style = style.Foreground(lipgloss.Color(color))
	}
	var cover *track.Decoration
	for i := range decos {
		d := &decos[i]
		if d.From <= pos && pos < d.To {
			if cover == nil || d.ID == selected {
				cover = d
			}
		}
	}
	if cover != nil {
		style = decorationStyle(cover.Type, cover.ID == selected)
	}
	if caret == pos {
		style = style.Inherit(caretStyle)
	}
	return style
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) > max {
		return s[:cut(s, max-1)] + "…"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lineNumber(n int) string {
	return lineNumberStyle.Render(fmt.Sprintf("%4d", n))
}
