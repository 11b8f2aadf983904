// Package tray runs the clipper from the system tray.
package tray

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/energye/systray"

	"github.com/thinkwright/caffeine-clipper/internal/clipper"
	"github.com/thinkwright/caffeine-clipper/internal/host"
	"github.com/thinkwright/caffeine-clipper/internal/store"
)

// Controller is what the tray needs from the clip workflow.
type Controller interface {
	Snapshot() clipper.State
	Subscribe() (<-chan struct{}, func())
	Now() time.Time
	Shortcut() host.Combo

	CreateClip(ctx context.Context) (store.Clip, error)
	ClearHistory(confirm bool) error
	OpenAuth() error
	OpenChat() error
	CopyBroadcastID() error
	ToggleShortcut() error
}

type Tray struct {
	ctrl Controller

	mu              sync.Mutex
	confirmingClear bool
	lastNotice      string
}

func New(ctrl Controller) *Tray {
	return &Tray{ctrl: ctrl}
}

// Run shows the tray icon and blocks until Quit is picked or ctx is done.
// It must be called from the main goroutine.
func (t *Tray) Run(ctx context.Context) {
	changes, unsubscribe := t.ctrl.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	systray.Run(func() {
		systray.SetIcon(icon)
		systray.SetTitle("Clipper")
		t.refreshTooltip()

		show := func(menu systray.IMenu) {
			systray.ResetMenu()
			t.populate()
			menu.ShowMenu()
		}
		systray.SetOnClick(show)
		systray.SetOnRClick(show)
		t.populate()

		go func() {
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case <-done:
					return
				case <-changes:
					t.refreshTooltip()
				}
			}
		}()
	}, func() {
		close(done)
		log.Printf("[INFO] tray closed")
	})
}

// Notify shows the latest notification in the icon tooltip.
func (t *Tray) Notify(title, body string) {
	t.mu.Lock()
	t.lastNotice = title
	if body != "" {
		t.lastNotice += ": " + body
	}
	t.mu.Unlock()
}

func (t *Tray) refreshTooltip() {
	tip := tooltip(t.ctrl.Snapshot(), t.ctrl.Now())
	t.mu.Lock()
	if t.lastNotice != "" {
		tip += "\n" + t.lastNotice
	}
	t.mu.Unlock()
	systray.SetTooltip(tip)
}

func (t *Tray) populate() {
	t.mu.Lock()
	confirming := t.confirmingClear
	t.mu.Unlock()

	for _, e := range buildMenu(t.ctrl.Snapshot(), t.ctrl.Now(), t.ctrl.Shortcut(), confirming) {
		if e.separator() {
			systray.AddSeparator()
			continue
		}
		item := systray.AddMenuItem(e.Label, e.Tooltip)
		t.wire(item, e)
		for _, c := range e.Children {
			t.wire(item.AddSubMenuItem(c.Label, c.Tooltip), c)
		}
	}
}

func (t *Tray) wire(item *systray.MenuItem, e entry) {
	if e.Disabled {
		item.Disable()
		return
	}
	if e.Action == actNone {
		return
	}
	act := e.Action
	item.Click(func() { t.do(act) })
}

func (t *Tray) do(a action) {
	var err error
	switch a {
	case actClip:
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_, err = t.ctrl.CreateClip(ctx)
	case actOpenChat:
		err = t.ctrl.OpenChat()
	case actCopyID:
		err = t.ctrl.CopyBroadcastID()
	case actAuth:
		err = t.ctrl.OpenAuth()
	case actShortcut:
		err = t.ctrl.ToggleShortcut()
	case actClearAsk, actClearCancel:
		t.mu.Lock()
		t.confirmingClear = a == actClearAsk
		t.mu.Unlock()
	case actClearConfirm:
		t.mu.Lock()
		t.confirmingClear = false
		t.mu.Unlock()
		err = t.ctrl.ClearHistory(true)
	case actQuit:
		systray.Quit()
	}
	if err != nil {
		log.Printf("[DEBUG] tray action %d: %v", a, err)
	}
}
