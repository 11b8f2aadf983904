// Package desktop binds the host capabilities that need the native desktop
// libraries (cgo on linux and darwin).
package desktop

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

// Clipboard writes text to the system clipboard.
type Clipboard struct {
	once    sync.Once
	initErr error
}

func (c *Clipboard) WriteText(text string) error {
	c.once.Do(func() { c.initErr = clipboard.Init() })
	if c.initErr != nil {
		return fmt.Errorf("clipboard unavailable: %w", c.initErr)
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
