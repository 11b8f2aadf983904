package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thinkwright/caffeine-clipper/internal/store"
)

// HistoryPane lists created clips, newest first.
type HistoryPane struct {
	table table.Model
	clips []store.Clip
	width int
}

func NewHistoryPane(p Palette) HistoryPane {
	t := table.New(
		table.WithColumns(historyColumns(60)),
		table.WithFocused(true),
		table.WithHeight(5),
	)
	t.SetStyles(p.TableStyles())
	return HistoryPane{table: t}
}

func historyColumns(w int) []table.Column {
	// leave room for cell padding
	idW := 18
	chW := 14
	urlW := max(w-idW-chW-6, 10)
	return []table.Column{
		{Title: "#", Width: 3},
		{Title: "CLIP", Width: idW - 4},
		{Title: "CHANNEL", Width: chW},
		{Title: "EDIT URL", Width: urlW},
	}
}

func (h *HistoryPane) SetStyles(p Palette) { h.table.SetStyles(p.TableStyles()) }

func (h *HistoryPane) SetSize(w, rows int) {
	h.width = w
	h.table.SetColumns(historyColumns(w))
	h.table.SetWidth(w)
	h.table.SetHeight(max(rows, 2))
}

// SetClips replaces the rows, keeping the cursor in range.
func (h *HistoryPane) SetClips(clips []store.Clip) {
	h.clips = clips
	rows := make([]table.Row, 0, len(clips))
	for i, c := range clips {
		rows = append(rows, table.Row{fmt.Sprint(len(clips) - i), c.ID, c.ChannelName, c.EditURL})
	}
	h.table.SetRows(rows)
	if h.table.Cursor() >= len(rows) {
		h.table.SetCursor(max(len(rows)-1, 0))
	}
}

// Selected is the clip under the cursor.
func (h HistoryPane) Selected() (store.Clip, bool) {
	i := h.table.Cursor()
	if i < 0 || i >= len(h.clips) {
		return store.Clip{}, false
	}
	return h.clips[i], true
}

func (h HistoryPane) Len() int { return len(h.clips) }

func (h *HistoryPane) Focus() { h.table.Focus() }
func (h *HistoryPane) Blur()  { h.table.Blur() }

func (h HistoryPane) Update(msg tea.Msg) (HistoryPane, tea.Cmd) {
	var cmd tea.Cmd
	h.table, cmd = h.table.Update(msg)
	return h, cmd
}

func (h HistoryPane) View() string {
	return h.table.View()
}
