// Package tui implements the Bubble Tea review interface for one document.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/margin/internal/critique"
	"github.com/sprite-ai/margin/internal/lifecycle"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/track"
)

// Options configures the review session.
type Options struct {
	// Critic requests new critiques. Nil disables the analyze key.
	Critic *critique.Critic
	// Sessions records critique conversations. May be nil.
	Sessions critique.Sessions
	// Mode is the analysis mode used for critique requests.
	Mode string
}

type (
	engineMsg   lifecycle.Event
	chunkMsg    string
	critiqueMsg struct {
		res critique.Result
		err error
	}
)

// Model is the top-level Bubble Tea model.
type Model struct {
	engine *lifecycle.Engine
	opts   Options
	send   func(tea.Msg)

	// UI state
	width      int
	height     int
	viewHeight int

	// Document
	lines  []docLine
	colors []colorSpan
	decos  []track.Decoration

	cursor int // index of the selected decoration
	scroll int // first visible line

	insert bool
	caret  int

	streaming bool
	stream    string

	status   string
	showHelp bool
}

// New creates a model over an engine with a document open.
func New(e *lifecycle.Engine, opts Options) Model {
	m := Model{engine: e, opts: opts}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	content := m.engine.Content()
	m.lines = splitLines(content)
	m.colors = syntaxColors(m.engine.Path(), content)
	m.decos = m.engine.Decorations()

	if m.cursor >= len(m.decos) {
		m.cursor = max(len(m.decos)-1, 0)
	}
	m.caret = min(max(m.caret, 0), len(content))
	m.scroll = min(m.scroll, max(len(m.lines)-1, 0))
}

func (m Model) selected() (track.Decoration, bool) {
	if m.cursor < len(m.decos) {
		return m.decos[m.cursor], true
	}
	return track.Decoration{}, false
}

func (m Model) selectedID() string {
	d, _ := m.selected()
	return d.ID
}

// ensureVisible scrolls so the line holding pos is on screen.
func (m *Model) ensureVisible(pos int) {
	if m.viewHeight <= 0 {
		return
	}
	line := lineOf(m.lines, pos)
	visible := m.docRows()
	if line < m.scroll {
		m.scroll = line
	} else if line >= m.scroll+visible {
		m.scroll = line - visible + 1
	}
}

func (m Model) docRows() int {
	return max(m.viewHeight-2, 1)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 4 // status bar + borders
		return m, nil

	case engineMsg:
		m.refresh()
		if msg.Kind == lifecycle.EventAutoDismissed {
			m.status = fmt.Sprintf("%d annotation(s) expired after editing", len(msg.IDs))
		}
		return m, nil

	case chunkMsg:
		m.stream += string(msg)
		return m, nil

	case critiqueMsg:
		m.finishCritique(msg)
		return m, nil

	case tea.KeyMsg:
		if m.insert {
			m.handleInsert(msg)
			return m, nil
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.streaming && m.opts.Critic != nil {
			m.opts.Critic.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Down):
		if m.scroll < len(m.lines)-1 {
			m.scroll++
		}

	case key.Matches(msg, keys.Up):
		if m.scroll > 0 {
			m.scroll--
		}

	case key.Matches(msg, keys.Next):
		if m.cursor < len(m.decos)-1 {
			m.cursor++
		}
		if d, ok := m.selected(); ok {
			m.ensureVisible(d.From)
		}

	case key.Matches(msg, keys.Prev):
		if m.cursor > 0 {
			m.cursor--
		}
		if d, ok := m.selected(); ok {
			m.ensureVisible(d.From)
		}

	case key.Matches(msg, keys.Apply):
		if id := m.selectedID(); id != "" {
			m.report(m.engine.Apply(id), "applied")
		}

	case key.Matches(msg, keys.Dismiss):
		if id := m.selectedID(); id != "" {
			m.report(m.engine.Dismiss(id), "dismissed")
		}

	case key.Matches(msg, keys.ClearAll):
		n, err := m.engine.ClearAll()
		m.report(err, fmt.Sprintf("dismissed %d annotation(s)", n))

	case key.Matches(msg, keys.Undo):
		ok, err := m.engine.Undo()
		if err == nil && !ok {
			m.status = "nothing to undo"
			break
		}
		m.report(err, "undone")

	case key.Matches(msg, keys.Redo):
		ok, err := m.engine.Redo()
		if err == nil && !ok {
			m.status = "nothing to redo"
			break
		}
		m.report(err, "redone")

	case key.Matches(msg, keys.Analyze):
		if m.opts.Critic == nil {
			m.status = "no AI provider configured"
			break
		}
		if m.streaming {
			break
		}
		m.streaming = true
		m.stream = ""
		m.status = "requesting critique from " + m.opts.Critic.Provider()
		return m, m.critiqueCmd()

	case key.Matches(msg, keys.Cancel):
		if m.streaming && m.opts.Critic != nil {
			m.opts.Critic.Cancel()
		}

	case key.Matches(msg, keys.Insert):
		m.insert = true
		if d, ok := m.selected(); ok {
			m.caret = d.To
		}
		m.status = ""

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}

	return m, nil
}

// report refreshes after an engine call and sets the status line.
func (m *Model) report(err error, ok string) {
	switch {
	case errors.Is(err, lifecycle.ErrNoSuggestion):
		m.status = "no suggestion to apply; press d to dismiss"
	case err != nil:
		m.status = err.Error()
	default:
		m.status = ok
	}
	m.refresh()
}

func (m *Model) handleInsert(msg tea.KeyMsg) {
	content := m.engine.Content()
	var err error

	switch msg.Type {
	case tea.KeyEsc:
		m.insert = false
		return
	case tea.KeyRunes, tea.KeySpace:
		text := string(msg.Runes)
		if msg.Type == tea.KeySpace {
			text = " "
		}
		if err = m.engine.Insert(m.caret, text); err == nil {
			m.caret += len(text)
		}
	case tea.KeyEnter:
		if err = m.engine.Insert(m.caret, "\n"); err == nil {
			m.caret++
		}
	case tea.KeyBackspace:
		if m.caret > 0 {
			_, w := utf8.DecodeLastRuneInString(content[:m.caret])
			if err = m.engine.Delete(m.caret-w, m.caret); err == nil {
				m.caret -= w
			}
		}
	case tea.KeyDelete:
		if m.caret < len(content) {
			_, w := utf8.DecodeRuneInString(content[m.caret:])
			err = m.engine.Delete(m.caret, m.caret+w)
		}
	case tea.KeyLeft:
		if m.caret > 0 {
			_, w := utf8.DecodeLastRuneInString(content[:m.caret])
			m.caret -= w
		}
	case tea.KeyRight:
		if m.caret < len(content) {
			_, w := utf8.DecodeRuneInString(content[m.caret:])
			m.caret += w
		}
	case tea.KeyUp, tea.KeyDown:
		m.caret = m.verticalMove(msg.Type == tea.KeyUp)
	}

	if err != nil {
		m.status = err.Error()
	}
	m.refresh()
	m.ensureVisible(m.caret)
}

// verticalMove returns the caret moved one line up or down, keeping the
// byte column where the target line allows.
func (m Model) verticalMove(up bool) int {
	i := lineOf(m.lines, m.caret)
	col := m.caret - m.lines[i].Start
	switch {
	case up && i > 0:
		i--
	case !up && i < len(m.lines)-1:
		i++
	default:
		return m.caret
	}
	l := m.lines[i]
	col = min(col, len(l.Text))
	for col > 0 && col < len(l.Text) && !utf8.RuneStart(l.Text[col]) {
		col--
	}
	return l.Start + col
}

func (m Model) critiqueCmd() tea.Cmd {
	critic, send := m.opts.Critic, m.send
	content, mode := m.engine.Content(), m.opts.Mode
	return func() tea.Msg {
		res, err := critic.Run(context.Background(), content, mode, func(chunk string) {
			if send != nil {
				send(chunkMsg(chunk))
			}
		})
		return critiqueMsg{res: res, err: err}
	}
}

func (m *Model) finishCritique(msg critiqueMsg) {
	m.streaming = false
	m.stream = ""

	var err error
	if m.opts.Sessions != nil && msg.res.Message.ID != "" {
		err = critique.Record(m.engine, m.opts.Sessions, msg.res)
	} else if msg.err == nil && len(msg.res.Annotations) > 0 {
		err = m.engine.AddAnnotations(msg.res.Mode, msg.res.Annotations)
	}

	switch {
	case errors.Is(msg.err, critique.ErrCancelled):
		m.status = "critique cancelled"
	case msg.err != nil:
		m.status = "critique failed: " + msg.err.Error()
	case err != nil:
		m.status = err.Error()
	default:
		m.status = fmt.Sprintf("%d new annotation(s)", len(msg.res.Annotations))
		if msg.res.Dropped > 0 {
			m.status += fmt.Sprintf(", %d quote(s) not found", msg.res.Dropped)
		}
	}
	m.refresh()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	listWidth := m.listWidth()
	docWidth := m.width - listWidth - 1

	doc := m.renderDocument(docWidth, m.height-2)
	list := m.renderList(listWidth, m.height-2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, doc, " ", list)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) listWidth() int {
	return min(max(m.width/3, 24), 60)
}

func (m Model) renderDocument(width, height int) string {
	innerWidth := width - 4 // borders + padding
	innerHeight := height - 2

	var b strings.Builder
	b.WriteString(fileHeaderStyle.Render(m.engine.Path()))
	b.WriteByte('\n')

	caret := -1
	if m.insert {
		caret = m.caret
	}
	selected := m.selectedID()

	end := min(m.scroll+m.docRows(), len(m.lines))
	for i := m.scroll; i < end; i++ {
		l := m.lines[i]
		text := renderDocLine(l, colorsOn(m.colors, l), decorationsOn(m.decos, l), selected, caret, innerWidth-6)
		b.WriteString(lineNumber(i+1) + "  " + text)
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return docViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderList(width, height int) string {
	innerWidth := width - 4
	innerHeight := height - 2

	var b strings.Builder
	b.WriteString(fileHeaderStyle.Render(fmt.Sprintf("Annotations (%d)", len(m.decos))))
	b.WriteByte('\n')

	if m.streaming {
		b.WriteString(streamStyle.Render(truncate(oneLine(m.stream), innerWidth*3)))
		b.WriteString("\n\n")
	}

	rows := max(innerHeight-10, 3)
	start := max(0, min(m.cursor-rows/2, len(m.decos)-rows))
	end := min(start+rows, len(m.decos))
	for i := start; i < end; i++ {
		d := m.decos[i]
		marker := "●"
		if m.engine.Pending(d.ID) {
			marker = pendingStyle.Render("◌")
		} else {
			marker = typeLabelStyle(d.Type).Render(marker)
		}
		text := truncate(fmt.Sprintf("%-11s %s", d.Type, oneLine(d.Message)), innerWidth-2)
		style := listItemStyle
		if i == m.cursor {
			style = listItemSelectedStyle
		}
		b.WriteString(marker + " " + style.Render(text))
		b.WriteByte('\n')
	}

	if d, ok := m.selected(); ok {
		b.WriteByte('\n')
		b.WriteString(m.renderDetail(d, innerWidth))
	} else if len(m.decos) == 0 {
		b.WriteString(helpBarStyle.Render("No active annotations"))
	}

	return listViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderDetail(d track.Decoration, width int) string {
	var b strings.Builder
	b.WriteString(typeLabelStyle(d.Type).Render(strings.ToUpper(d.Type.String())))
	b.WriteByte('\n')
	b.WriteString(lipgloss.NewStyle().Width(width).Render(d.Message))
	b.WriteByte('\n')

	if a, ok := m.engine.Get(d.ID); ok {
		b.WriteString(detailLabelStyle.Render("quote  "))
		b.WriteString(truncate(oneLine(a.MatchedText), width-7))
		b.WriteByte('\n')
	}
	if d.Suggestion != "" {
		b.WriteString(detailLabelStyle.Render("apply  "))
		b.WriteString(suggestionStyle.Render(truncate(oneLine(d.Suggestion), width-7)))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	mode := "NORMAL"
	if m.insert {
		mode = "INSERT"
	}
	left := statusModeStyle.Render(mode) + " "
	if len(m.decos) > 0 {
		left += fmt.Sprintf("Annotation %d/%d", m.cursor+1, len(m.decos))
	} else {
		left += "No annotations"
	}
	if m.status != "" {
		left += "  " + m.status
	}

	undo, redo := m.engine.History()
	right := fmt.Sprintf("undo %d  redo %d  ? help ", undo, redo)

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(fileHeaderStyle.Render("margin: keyboard shortcuts"))
	b.WriteString("\n\n")

	bindings := []key.Binding{
		keys.Up, keys.Down, keys.Next, keys.Prev,
		keys.Apply, keys.Dismiss, keys.ClearAll,
		keys.Undo, keys.Redo, keys.Analyze, keys.Cancel,
		keys.Insert, keys.Normal, keys.Help, keys.Quit,
	}
	for _, kb := range bindings {
		h := kb.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(12).Render(h.Key), h.Desc))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// Run starts the review session and returns a summary when it ends.
func Run(e *lifecycle.Engine, opts Options) (Summary, error) {
	var p *tea.Program
	m := New(e, opts)
	m.send = func(msg tea.Msg) { p.Send(msg) }
	p = tea.NewProgram(m, tea.WithAltScreen())

	// Engine events may be emitted from inside Update; deliver them
	// asynchronously so the program loop never waits on itself.
	unsubscribe := e.Subscribe(func(ev lifecycle.Event) {
		go p.Send(engineMsg(ev))
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return Summary{}, err
	}
	return Summarize(e), nil
}

// Summary counts the outcome of a review session.
type Summary struct {
	Path          string
	Applied       int
	Dismissed     int
	AutoDismissed int
	Remaining     int
}

// Summarize counts the archived and active annotations of the open document.
func Summarize(e *lifecycle.Engine) Summary {
	s := Summary{Path: e.Path(), Remaining: len(e.Active())}
	for _, a := range e.Archive() {
		switch {
		case a.State() == model.StateApplied:
			s.Applied++
		case a.Auto:
			s.AutoDismissed++
		default:
			s.Dismissed++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d applied, %d dismissed, %d expired, %d remaining",
		s.Path, s.Applied, s.Dismissed, s.AutoDismissed, s.Remaining)
}
