package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/thinkwright/caffeine-clipper/internal/config"
)

// Palette is one color scheme. colorMode in the settings picks Dark or Light.
type Palette struct {
	Accent      lipgloss.Color
	AccentDim   lipgloss.Color
	Focus       lipgloss.Color
	FocusTitle  lipgloss.Color
	Green       lipgloss.Color
	Red         lipgloss.Color
	Yellow      lipgloss.Color
	Dim         lipgloss.Color
	Text        lipgloss.Color
	BarBg       lipgloss.Color
	BarText     lipgloss.Color
	Select      lipgloss.Color
	SelectBg    lipgloss.Color
	ModalBorder lipgloss.Color
}

// Twitch purple on black
var Dark = Palette{
	Accent:      lipgloss.Color("#9146ff"),
	AccentDim:   lipgloss.Color("#4b2a80"),
	Focus:       lipgloss.Color("#bf94ff"),
	FocusTitle:  lipgloss.Color("#e5d4ff"),
	Green:       lipgloss.Color("#5aaa7a"),
	Red:         lipgloss.Color("#eb0400"),
	Yellow:      lipgloss.Color("#b5a05a"),
	Dim:         lipgloss.Color("#6b6b7b"),
	Text:        lipgloss.Color("#dedee3"),
	BarBg:       lipgloss.Color("#18181b"),
	BarText:     lipgloss.Color("#efeff1"),
	Select:      lipgloss.Color("#ffffff"),
	SelectBg:    lipgloss.Color("#3a2266"),
	ModalBorder: lipgloss.Color("#b5a05a"),
}

var Light = Palette{
	Accent:      lipgloss.Color("#6b2fd6"),
	AccentDim:   lipgloss.Color("#a88be0"),
	Focus:       lipgloss.Color("#4a1aa8"),
	FocusTitle:  lipgloss.Color("#2d0f6b"),
	Green:       lipgloss.Color("#1f7a45"),
	Red:         lipgloss.Color("#b00200"),
	Yellow:      lipgloss.Color("#8a6d00"),
	Dim:         lipgloss.Color("#7a7a85"),
	Text:        lipgloss.Color("#1f1f23"),
	BarBg:       lipgloss.Color("#e5e5ea"),
	BarText:     lipgloss.Color("#0e0e10"),
	Select:      lipgloss.Color("#0e0e10"),
	SelectBg:    lipgloss.Color("#d9c9fb"),
	ModalBorder: lipgloss.Color("#8a6d00"),
}

func PaletteFor(mode string) Palette {
	if mode == config.ColorModeLight {
		return Light
	}
	return Dark
}

func (p Palette) Style(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func (p Palette) TableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		Foreground(p.Accent).
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(p.AccentDim).
		BorderBottom(true)
	s.Cell = s.Cell.Foreground(p.Text)
	s.Selected = s.Selected.
		Foreground(p.Select).
		Background(p.SelectBg).
		Bold(true)
	return s
}

// ─── Custom Border Rendering ──────────────────────────────────────────
// Panels carry their title in the top border:
//   ┏━╸ HISTORY ╺━━━━━━━━━━━━━━┓
//   ┃                           ┃
//   ┗━━━━━━━━━━━━━━━━━━━━━━━━━━━┛
// Focused panels switch to the double line set.

// Panel draws content inside a titled border of w x (h+2) cells.
func (p Palette) Panel(title, content string, w, h int, focused bool) string {
	borderColor := p.AccentDim
	titleColor := p.Accent
	if focused {
		borderColor = p.Focus
		titleColor = p.FocusTitle
	}

	bc := lipgloss.NewStyle().Foreground(borderColor)
	tc := lipgloss.NewStyle().Foreground(titleColor).Bold(true)

	innerW := w - 2

	titleText := " " + title + " "
	fillLen := max(w-5-utf8.RuneCountInString(titleText), 0)

	var topBorder, bottomBorder, side string
	if focused {
		topBorder = bc.Render("╔═╸") + tc.Render(titleText) + bc.Render("╺"+strings.Repeat("═", fillLen)+"╗")
		bottomBorder = bc.Render("╚" + strings.Repeat("═", innerW) + "╝")
		side = bc.Render("║")
	} else {
		topBorder = bc.Render("┏━╸") + tc.Render(titleText) + bc.Render("╺"+strings.Repeat("━", fillLen)+"┓")
		bottomBorder = bc.Render("┗" + strings.Repeat("━", innerW) + "┛")
		side = bc.Render("┃")
	}

	lines := strings.Split(content, "\n")
	for len(lines) < h {
		lines = append(lines, "")
	}
	if len(lines) > h {
		lines = lines[:h]
	}

	rows := make([]string, 0, h+2)
	rows = append(rows, topBorder)
	for _, line := range lines {
		visible := visibleLen(line)
		if visible > innerW {
			line = truncateToWidth(line, innerW)
			visible = visibleLen(line)
		}
		rows = append(rows, side+line+strings.Repeat(" ", max(innerW-visible, 0))+side)
	}
	rows = append(rows, bottomBorder)

	return strings.Join(rows, "\n")
}

func visibleLen(s string) int {
	return runewidth.StringWidth(stripAnsi(s))
}

func stripAnsi(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		if r == '\x1b' {
			inEsc = true
			continue
		}
		if inEsc {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncateToWidth cuts s to at most w visible cells, keeping escape
// sequences intact and resetting styles at the cut.
func truncateToWidth(s string, w int) string {
	var out strings.Builder
	col := 0
	for _, seg := range splitAnsiSegments(s) {
		if !seg.visible {
			out.WriteString(seg.text)
			continue
		}
		rw := runewidth.StringWidth(seg.text)
		if col+rw > w {
			out.WriteString("\x1b[0m")
			break
		}
		out.WriteString(seg.text)
		col += rw
	}
	return out.String()
}
