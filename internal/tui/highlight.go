package tui

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// colorSpan paints document bytes [From, To) in Color, a hex string.
type colorSpan struct {
	From, To int
	Color    string
}

// syntaxColors lexes the whole document and returns its colored spans in
// offset order, using the same byte offsets as annotations. Drafts without
// a known extension are lexed as markdown. If the lexer rewrites the text
// the document is left uncolored.
func syntaxColors(path, content string) []colorSpan {
	lexer := lexerFor(path)
	if lexer == nil || content == "" {
		return nil
	}
	it, err := lexer.Tokenise(&chroma.TokeniseOptions{State: "root"}, content)
	if err != nil {
		return nil
	}
	pal := newPalette()

	var spans []colorSpan
	pos := 0
	for _, tok := range it.Tokens() {
		if pos == len(content) {
			break // trailing newline added by the lexer
		}
		n := len(tok.Value)
		if pos+n > len(content) {
			n = len(content) - pos
		}
		if content[pos:pos+n] != tok.Value[:n] {
			return nil
		}
		color := pal.color(tok.Type)
		switch {
		case n == 0 || color == "":
		case len(spans) > 0 && spans[len(spans)-1].To == pos && spans[len(spans)-1].Color == color:
			spans[len(spans)-1].To = pos + n
		default:
			spans = append(spans, colorSpan{From: pos, To: pos + n, Color: color})
		}
		pos += n
	}
	return spans
}

// colorsOn returns the spans overlapping line l.
func colorsOn(spans []colorSpan, l docLine) []colorSpan {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].To > l.Start })
	j := i
	for j < len(spans) && spans[j].From < l.End() {
		j++
	}
	return spans[i:j]
}

// colorAt returns the syntax color at offset pos, or "" for default text.
func colorAt(spans []colorSpan, pos int) string {
	for _, s := range spans {
		if s.From <= pos && pos < s.To {
			return s.Color
		}
	}
	return ""
}

func lexerFor(path string) chroma.Lexer {
	lexer := lexers.Match(path)
	if lexer == nil {
		if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
			lexer = lexers.Match("draft" + ext)
		}
	}
	if lexer == nil {
		lexer = lexers.Get("markdown")
	}
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}

// palette memoizes style lookups per token type.
type palette struct {
	style *chroma.Style
	seen  map[chroma.TokenType]string
}

func newPalette() *palette {
	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}
	return &palette{style: style, seen: make(map[chroma.TokenType]string)}
}

func (p *palette) color(tt chroma.TokenType) string {
	if c, ok := p.seen[tt]; ok {
		return c
	}
	var c string
	if entry := p.style.Get(tt); entry.Colour.IsSet() {
		c = entry.Colour.String()
	}
	p.seen[tt] = c
	return c
}
