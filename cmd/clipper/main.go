package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thinkwright/caffeine-clipper/internal/chat"
	"github.com/thinkwright/caffeine-clipper/internal/clipper"
	"github.com/thinkwright/caffeine-clipper/internal/config"
	"github.com/thinkwright/caffeine-clipper/internal/host"
	"github.com/thinkwright/caffeine-clipper/internal/host/desktop"
	"github.com/thinkwright/caffeine-clipper/internal/store"
	"github.com/thinkwright/caffeine-clipper/internal/tray"
	"github.com/thinkwright/caffeine-clipper/internal/twitch"
	"github.com/thinkwright/caffeine-clipper/internal/ui"
	"github.com/thinkwright/caffeine-clipper/internal/watcher"
)

// Opts with all CLI options
type Opts struct {
	DataDir     string        `short:"d" long:"data-dir" env:"CLIPPER_DATA_DIR" description:"settings, history and token directory"`
	ClientID    string        `long:"client-id" env:"TWITCH_CLIENT_ID" description:"twitch application client id"`
	RedirectURI string        `long:"redirect-uri" env:"TWITCH_REDIRECT_URI" default:"http://localhost" description:"oauth redirect uri registered for the client id; the token arrives in its #access_token fragment, save it to token.txt in the data dir"`
	Cooldown    time.Duration `long:"cooldown" env:"CLIPPER_COOLDOWN" default:"10s" description:"minimum time between clip requests"`
	Debounce    time.Duration `long:"debounce" env:"CLIPPER_DEBOUNCE" default:"500ms" description:"quiet period before channel and settings sync"`
	Shortcut    string        `long:"shortcut" env:"CLIPPER_SHORTCUT" default:"ctrl+shift+s" description:"global clip shortcut"`
	Tray        bool          `long:"tray" env:"CLIPPER_TRAY" description:"run from the system tray instead of the terminal"`

	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
}

var version = "dev"

func main() {
	_ = godotenv.Load()

	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("clipper %s (%s)\n", version, runtime.Version())
		os.Exit(0)
	}

	if opts.DataDir == "" {
		opts.DataDir = config.DataDir()
	}
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "error creating data dir: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Opts) error {
	settingsStore := config.NewStore(opts.DataDir)
	settings, err := settingsStore.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if opts.ClientID != "" {
		settings.ClientID = opts.ClientID
	}
	token, err := watcher.ReadToken(opts.DataDir)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		settings.BearerToken = token
	}

	logw := &lumberjack.Logger{
		Filename:   filepath.Join(opts.DataDir, "clipper.log"),
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     28,
	}
	defer logw.Close()
	masker := newLogMasker(logw, opts.Debug)
	masker.Add(settings.BearerToken)
	log.Printf("[INFO] starting clipper %s, data in %s", version, opts.DataDir)

	historyStore, err := store.Open(store.HistoryPath(opts.DataDir))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	history, err := historyStore.Load()
	if err != nil {
		// keep going with an empty list; the next clip rewrites the file
		log.Printf("[WARN] history unreadable, starting empty: %v", err)
		history = nil
	}

	api := &twitch.Client{RedirectURI: opts.RedirectURI}
	notices := ui.NewNotices(16)
	notifier := host.Notifiers{notices, host.LogNotifier{}}
	if opts.Tray {
		// nothing on screen shows rejections and failures in tray mode
		notifier = append(notifier, host.NewDesktopNotifier())
	}

	ctrl, err := clipper.New(clipper.Deps{
		API:       api,
		Settings:  settingsStore,
		History:   historyStore,
		Notifier:  notifier,
		Clipboard: &desktop.Clipboard{},
		Browser:   host.NewBrowser(logw),
		Hotkeys:   desktop.NewHotkeys(),
	}, settings, history, clipper.Options{
		Cooldown: opts.Cooldown,
		Debounce: opts.Debounce,
		Shortcut: opts.Shortcut,
	})
	if err != nil {
		return err
	}
	ctrl.Start()
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		onToken := func(token string) {
			masker.Add(token)
			ctrl.SetBearerToken(token)
		}
		if err := watcher.Watch(ctx, opts.DataDir, 250*time.Millisecond, onToken); err != nil {
			log.Printf("[WARN] token watcher stopped: %v", err)
		}
	}()

	tail := chat.NewTail(64)
	go trackState(ctx, ctrl, tail, masker)
	go func() {
		if err := tail.Run(ctx); err != nil {
			log.Printf("[WARN] chat stopped: %v", err)
		}
	}()

	if opts.Tray {
		t := tray.New(ctrl)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case n := <-notices.C():
					t.Notify(n.Title, n.Body)
				}
			}
		}()
		t.Run(ctx)
		return nil
	}

	ensureTermSize()
	p := tea.NewProgram(ui.NewModel(ctrl, ui.Options{
		Lookup:  api,
		Notices: notices,
		Chat:    tail.Messages(),
		DataDir: opts.DataDir,
	}), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// trackState keeps the chat tail on the resolved channel and masks tokens
// typed into the dashboard. Names still being typed have no broadcaster id,
// so they never reach IRC.
func trackState(ctx context.Context, ctrl *clipper.Controller, tail *chat.Tail, masker *logMasker) {
	changes, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	for {
		st := ctrl.Snapshot()
		masker.Add(st.Settings.BearerToken)
		if name := st.ChatChannel(); name != tail.Channel() {
			tail.Follow(name)
		}
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}
	}
}

// ensureTermSize asks the terminal to grow to fit the dashboard.
func ensureTermSize() {
	const minCols, minRows = 100, 30
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || (w >= minCols && h >= minRows) {
		return
	}
	fmt.Fprintf(os.Stdout, "\x1b[8;%d;%dt", max(h, minRows), max(w, minCols))
}
