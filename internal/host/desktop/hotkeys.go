package desktop

import (
	"fmt"
	"log"
	"sync"

	"golang.design/x/hotkey"

	"github.com/thinkwright/caffeine-clipper/internal/host"
)

var letterKeys = map[rune]hotkey.Key{
	'a': hotkey.KeyA, 'b': hotkey.KeyB, 'c': hotkey.KeyC, 'd': hotkey.KeyD,
	'e': hotkey.KeyE, 'f': hotkey.KeyF, 'g': hotkey.KeyG, 'h': hotkey.KeyH,
	'i': hotkey.KeyI, 'j': hotkey.KeyJ, 'k': hotkey.KeyK, 'l': hotkey.KeyL,
	'm': hotkey.KeyM, 'n': hotkey.KeyN, 'o': hotkey.KeyO, 'p': hotkey.KeyP,
	'q': hotkey.KeyQ, 'r': hotkey.KeyR, 's': hotkey.KeyS, 't': hotkey.KeyT,
	'u': hotkey.KeyU, 'v': hotkey.KeyV, 'w': hotkey.KeyW, 'x': hotkey.KeyX,
	'y': hotkey.KeyY, 'z': hotkey.KeyZ,
}

type binding struct {
	hk   *hotkey.Hotkey
	stop chan struct{}
}

// Hotkeys registers system wide shortcuts. On macOS registration only
// works once the app runs a main-thread event loop (the tray does).
type Hotkeys struct {
	mu    sync.Mutex
	bound map[host.Combo]*binding
}

func NewHotkeys() *Hotkeys {
	return &Hotkeys{bound: map[host.Combo]*binding{}}
}

// Bind registers combo and calls fn on every key down. Binding a combo
// twice replaces the previous handler.
func (h *Hotkeys) Bind(combo host.Combo, fn func()) error {
	key, ok := letterKeys[combo.Key]
	if !ok {
		return fmt.Errorf("hotkey %s: unsupported key", combo)
	}
	var mods []hotkey.Modifier
	if combo.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if combo.Shift {
		mods = append(mods, hotkey.ModShift)
	}

	if err := h.Unbind(combo); err != nil {
		return err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %s: %w", combo, err)
	}
	b := &binding{hk: hk, stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-b.stop:
				return
			case _, ok := <-hk.Keydown():
				if !ok {
					return
				}
				fn()
			}
		}
	}()

	h.mu.Lock()
	h.bound[combo] = b
	h.mu.Unlock()
	log.Printf("[DEBUG] hotkey %s registered", combo)
	return nil
}

// Unbind releases combo. Unbinding an unknown combo is a no-op.
func (h *Hotkeys) Unbind(combo host.Combo) error {
	h.mu.Lock()
	b, ok := h.bound[combo]
	delete(h.bound, combo)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	close(b.stop)
	if err := b.hk.Unregister(); err != nil {
		return fmt.Errorf("unregister hotkey %s: %w", combo, err)
	}
	return nil
}
