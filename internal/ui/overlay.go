package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// renderConfirm draws a small yes/no modal.
func (p Palette) renderConfirm(title, question, detail string) string {
	bc := p.Style(p.ModalBorder)
	tc := p.Style(p.ModalBorder).Bold(true)

	innerW := max(36, visibleLen(question)+4, visibleLen(detail)+4)
	side := bc.Render("┃")
	blank := side + strings.Repeat(" ", innerW) + side
	line := func(s string) string {
		return side + s + strings.Repeat(" ", max(innerW-visibleLen(s), 0)) + side
	}

	label := " " + title + " "
	fill := max(innerW-3-utf8.RuneCountInString(label), 0)

	rows := []string{
		bc.Render("┏━╸") + tc.Render(label) + bc.Render("╺"+strings.Repeat("━", fill)+"┓"),
		blank,
		line("  " + p.Style(p.Text).Bold(true).Render(question)),
	}
	if detail != "" {
		rows = append(rows, line("  "+p.Style(p.Dim).Render(detail)))
	}
	opts := fmt.Sprintf("  %s yes  %s no",
		lipgloss.NewStyle().Foreground(p.Select).Background(p.SelectBg).Bold(true).Render("[y]"),
		p.Style(p.Dim).Render("[n/esc]"))
	rows = append(rows, blank, line(opts), blank, bc.Render("┗"+strings.Repeat("━", innerW)+"┛"))
	return strings.Join(rows, "\n")
}

// overlayCenter paints modal over the middle of bg, leaving the rest of
// the screen visible around it.
func overlayCenter(bg, modal string, width, height int) string {
	bgLines := strings.Split(bg, "\n")
	modalLines := strings.Split(modal, "\n")
	for len(bgLines) < height {
		bgLines = append(bgLines, "")
	}

	modalW := 0
	for _, ml := range modalLines {
		modalW = max(modalW, visibleLen(ml))
	}
	topOff := max((height-len(modalLines))/2, 0)
	leftOff := max((width-modalW)/2, 0)

	for i, ml := range modalLines {
		if row := topOff + i; row < len(bgLines) {
			bgLines[row] = spliceAnsiLine(bgLines[row], ml, leftOff)
		}
	}
	return strings.Join(bgLines, "\n")
}

// ansiSeg is either one escape sequence or one visible rune.
type ansiSeg struct {
	text    string
	visible bool
}

func splitAnsiSegments(s string) []ansiSeg {
	var segs []ansiSeg
	for i := 0; i < len(s); {
		if s[i] == '\x1b' {
			j := i + 1
			for j < len(s) && !((s[j] >= 'a' && s[j] <= 'z') || (s[j] >= 'A' && s[j] <= 'Z')) {
				j++
			}
			if j < len(s) {
				j++
			}
			segs = append(segs, ansiSeg{s[i:j], false})
			i = j
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		segs = append(segs, ansiSeg{s[i : i+size], true})
		i += size
	}
	return segs
}

// spliceAnsiLine writes modalLine over bgLine from visible column leftOff.
func spliceAnsiLine(bgLine, modalLine string, leftOff int) string {
	segs := splitAnsiSegments(bgLine)

	var out strings.Builder
	col := 0
	for _, seg := range segs {
		if col >= leftOff {
			break
		}
		out.WriteString(seg.text)
		if seg.visible {
			col++
		}
	}
	for ; col < leftOff; col++ {
		out.WriteByte(' ')
	}

	out.WriteString("\x1b[0m")
	out.WriteString(modalLine)

	rightStart := leftOff + visibleLen(modalLine)
	bgCol := 0
	for _, seg := range segs {
		if !seg.visible {
			if bgCol > rightStart {
				out.WriteString(seg.text)
			}
			continue
		}
		bgCol++
		if bgCol > rightStart {
			out.WriteString(seg.text)
		}
	}
	return out.String()
}
