package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TokenFile is the file in the data dir that carries a pasted bearer token.
const TokenFile = "token.txt"

// ReadToken returns the trimmed content of the token file in dir.
// A missing file yields an empty token and no error.
func ReadToken(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, TokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Watch calls onToken with the new token every time token.txt in dir is
// created or rewritten with a different non-empty value. Events are
// debounced by quiet. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, quiet time.Duration, onToken func(string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	// editors replace files on save, so watch the directory rather than the file
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	last, _ := ReadToken(dir)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != TokenFile || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			debounce.Reset(quiet)
		case <-debounce.C:
			tok, err := ReadToken(dir)
			if err != nil {
				log.Printf("[WARN] %v", err)
				continue
			}
			if tok == "" || tok == last {
				continue
			}
			last = tok
			log.Printf("[INFO] token file changed")
			onToken(tok)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] token watcher: %v", err)
		}
	}
}
