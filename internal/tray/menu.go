package tray

import (
	"fmt"
	"time"

	"github.com/thinkwright/caffeine-clipper/internal/clipper"
	"github.com/thinkwright/caffeine-clipper/internal/host"
)

type action int

const (
	actNone action = iota
	actClip
	actOpenChat
	actCopyID
	actAuth
	actShortcut
	actClearAsk
	actClearConfirm
	actClearCancel
	actQuit
)

// entry is one menu line; a zero entry is a separator.
type entry struct {
	Label    string
	Tooltip  string
	Disabled bool
	Action   action
	Children []entry
}

func (e entry) separator() bool { return e.Label == "" }

// buildMenu lays out the tray menu for the given state. Clearing history
// takes two clicks: the first swaps the item for a confirm/cancel pair.
func buildMenu(st clipper.State, now time.Time, combo host.Combo, confirmingClear bool) []entry {
	channel := st.Settings.ChannelName

	clip := entry{Label: "Clip!", Action: actClip, Tooltip: "cut a clip of the live broadcast"}
	switch err := st.Rejection(now); {
	case err == nil:
		clip.Label = "Clip! (" + channel + ")"
	case st.CooldownLeft(now) > 0:
		clip.Label = fmt.Sprintf("Clip! (cooldown %ds)", int(st.CooldownLeft(now).Round(time.Second).Seconds()))
		clip.Disabled = true
	default:
		clip.Disabled = true
		clip.Tooltip = err.Error()
	}

	shortcut := entry{Label: "Activate shortcut " + combo.String(), Action: actShortcut}
	if st.ShortcutActive {
		shortcut.Label = "Deactivate shortcut " + combo.String()
	}

	auth := entry{Label: "Authenticate", Action: actAuth, Tooltip: "open the Twitch authorization page"}
	if st.AuthUser != "" {
		auth.Label = "Authenticated as " + st.AuthUser
	}

	clearItem := entry{
		Label:    fmt.Sprintf("Clear history (%d)", len(st.History)),
		Tooltip:  "removes the local list only; clips stay on Twitch",
		Action:   actClearAsk,
		Disabled: len(st.History) == 0,
	}
	if confirmingClear {
		clearItem = entry{
			Label: "Clear history?",
			Children: []entry{
				{Label: "Yes, clear it", Action: actClearConfirm},
				{Label: "Cancel", Action: actClearCancel},
			},
		}
	}

	return []entry{
		clip,
		{},
		{Label: "Open chat", Action: actOpenChat, Disabled: channel == ""},
		{Label: "Copy broadcast ID", Action: actCopyID, Disabled: st.Settings.BroadcastID == ""},
		auth,
		shortcut,
		{},
		clearItem,
		{},
		{Label: "Quit", Action: actQuit},
	}
}

// tooltip summarises the state for the tray icon.
func tooltip(st clipper.State, now time.Time) string {
	channel := st.Settings.ChannelName
	if channel == "" {
		return "caffeine-clipper: no channel set"
	}
	status := st.Live.String()
	switch {
	case st.Resolving:
		status = "resolving"
	case st.Clipping:
		status = "clipping"
	case st.CooldownLeft(now) > 0:
		status = "cooling down"
	}
	return fmt.Sprintf("caffeine-clipper: %s (%s), %d clips", channel, status, len(st.History))
}
