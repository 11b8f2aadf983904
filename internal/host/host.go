// Package host holds the desktop capabilities the clip controller drives:
// notifications, the clipboard, the browser and global hotkeys.
package host

import (
	"fmt"
	"io"
	"log"
	"strings"
	"unicode"

	"github.com/gen2brain/beeep"
	"github.com/pkg/browser"
)

// Combo is a global shortcut made of modifiers and one letter.
type Combo struct {
	Ctrl  bool
	Shift bool
	Key   rune
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, string(c.Key)), "+")
}

// ParseCombo reads shortcuts like "ctrl+shift+s". At least one modifier is
// required so a bare letter never gets grabbed system wide.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == len(parts)-1 {
			r := []rune(p)
			if len(r) != 1 || !unicode.IsLetter(r[0]) || r[0] > unicode.MaxASCII {
				return Combo{}, fmt.Errorf("shortcut %q: key must be a single letter", s)
			}
			c.Key = r[0]
			break
		}
		switch p {
		case "ctrl", "control", "cmd", "command":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		default:
			return Combo{}, fmt.Errorf("shortcut %q: unknown modifier %q", s, p)
		}
	}
	if !c.Ctrl && !c.Shift {
		return Combo{}, fmt.Errorf("shortcut %q: needs a modifier", s)
	}
	return c, nil
}

// Browser opens URLs with the system browser.
type Browser struct{}

// NewBrowser routes the launcher's own output to out, which keeps a
// running TUI from being scribbled over.
func NewBrowser(out io.Writer) *Browser {
	if out == nil {
		out = io.Discard
	}
	browser.Stdout = out
	browser.Stderr = out
	return &Browser{}
}

func (b *Browser) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) {
	log.Printf("[INFO] %s: %s", title, body)
}

// DesktopNotifier shows notifications as OS desktop notifications.
type DesktopNotifier struct {
	send func(title, body string) error
}

func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{send: func(title, body string) error {
		return beeep.Notify(title, body, "")
	}}
}

// Notify never fails the caller; a missing notification daemon is logged.
func (d *DesktopNotifier) Notify(title, body string) {
	if err := d.send(title, body); err != nil {
		log.Printf("[WARN] desktop notification %q: %v", title, err)
	}
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []interface{ Notify(title, body string) }

func (ns Notifiers) Notify(title, body string) {
	for _, n := range ns {
		n.Notify(title, body)
	}
}
