package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/margin/internal/model"
)

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	docViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	listViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4).
			Align(lipgloss.Right)

	fileHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	listItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	listItemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	suggestionStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	caretStyle = lipgloss.NewStyle().
			Reverse(true)

	streamStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusModeStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Background(colorBgLight).
			Bold(true)

	// Help bar
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

// typeColor is the accent used for an annotation type.
func typeColor(t model.Type) lipgloss.Color {
	switch t {
	case model.TypePassive:
		return colorPurple
	case model.TypeConsistency:
		return colorOrange
	case model.TypeCritique:
		return colorBlue
	case model.TypeCustom:
		return colorGreen
	default:
		return colorYellow
	}
}

// decorationStyle underlines an annotated range in its type color. The
// selected annotation is also highlighted.
func decorationStyle(t model.Type, selected bool) lipgloss.Style {
	s := lipgloss.NewStyle().Foreground(typeColor(t)).Underline(true)
	if selected {
		s = s.Background(colorHighlight).Bold(true)
	}
	return s
}

func typeLabelStyle(t model.Type) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(typeColor(t)).Bold(true)
}
