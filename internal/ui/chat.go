package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thinkwright/caffeine-clipper/internal/chat"
)

const chatBacklog = 200

// ChatPane shows the tail of the target channel's chat.
type ChatPane struct {
	channel string
	lines   []chat.Message
}

// Reset clears the backlog when the followed channel changes.
func (c *ChatPane) Reset(channel string) {
	if channel == c.channel {
		return
	}
	c.channel = channel
	c.lines = nil
}

func (c *ChatPane) Add(m chat.Message) {
	c.lines = append(c.lines, m)
	if len(c.lines) > chatBacklog {
		c.lines = c.lines[len(c.lines)-chatBacklog:]
	}
}

// View renders the last h messages that fit in w cells.
func (c ChatPane) View(p Palette, w, h int) string {
	if c.channel == "" {
		return p.Style(p.Dim).Render(" chat appears once the channel resolves")
	}
	if len(c.lines) == 0 {
		return p.Style(p.Dim).Render(" waiting for #" + c.channel + " chat...")
	}
	start := max(len(c.lines)-h, 0)
	out := make([]string, 0, h)
	for _, m := range c.lines[start:] {
		color := p.Accent
		if m.Color != "" {
			color = lipgloss.Color(m.Color)
		}
		name := lipgloss.NewStyle().Foreground(color).Bold(true).Render(m.User)
		ts := p.Style(p.Dim).Render(m.At.Format("15:04"))
		text := strings.ReplaceAll(m.Text, "\n", " ")
		line := " " + ts + " " + name + p.Style(p.Dim).Render(": ") + p.Style(p.Text).Render(text)
		if visibleLen(line) > w {
			line = truncateToWidth(line, w)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
