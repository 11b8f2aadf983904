// Package clipper is the workflow behind the clip button: it owns the
// current settings and clip history, keeps the target channel resolved and
// its live status fresh, and cuts clips subject to a cooldown.
//
// The Controller is the only writer of settings and history. Everything
// else reads copies through Snapshot and listens for changes with Subscribe.
package clipper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/thinkwright/caffeine-clipper/internal/config"
	"github.com/thinkwright/caffeine-clipper/internal/debounce"
	"github.com/thinkwright/caffeine-clipper/internal/host"
	"github.com/thinkwright/caffeine-clipper/internal/store"
	"github.com/thinkwright/caffeine-clipper/internal/twitch"
)

const (
	DefaultCooldown       = 10 * time.Second
	DefaultDebounce       = 500 * time.Millisecond
	DefaultRequestTimeout = 15 * time.Second
	DefaultShortcut       = "ctrl+shift+s"
)

var (
	// ErrRejected wraps every reason a clip request is refused before it
	// reaches Twitch.
	ErrRejected      = errors.New("clip rejected")
	ErrClipInFlight  = fmt.Errorf("%w: a clip is already being created", ErrRejected)
	ErrCoolingDown   = fmt.Errorf("%w: cooling down", ErrRejected)
	ErrNoBroadcastID = fmt.Errorf("%w: channel not resolved", ErrRejected)
	ErrNotLive       = fmt.Errorf("%w: channel is not live", ErrRejected)

	ErrNoChannel    = errors.New("no channel set")
	ErrNotConfirmed = errors.New("clearing history needs confirmation")
)

// API is the subset of the Twitch client the controller calls.
type API interface {
	AuthURL(creds twitch.Credentials) (string, error)
	ResolveBroadcastID(ctx context.Context, creds twitch.Credentials, login string) (string, error)
	IsLive(ctx context.Context, creds twitch.Credentials, login string) (bool, error)
	CreateClip(ctx context.Context, creds twitch.Credentials, broadcastID string) (twitch.ClipResult, error)
	CurrentUser(ctx context.Context, creds twitch.Credentials) (twitch.User, error)
}

type SettingsStore interface {
	Save(config.Settings) error
}

type HistoryStore interface {
	Save([]store.Clip) error
}

type Notifier interface {
	Notify(title, body string)
}

type ClipboardWriter interface {
	WriteText(text string) error
}

type BrowserOpener interface {
	Open(url string) error
}

type HotkeyRegistry interface {
	Bind(combo host.Combo, fn func()) error
	Unbind(combo host.Combo) error
}

// Deps are the collaborators of a Controller. API and both stores are
// required; missing host capabilities become no-ops.
type Deps struct {
	API       API
	Settings  SettingsStore
	History   HistoryStore
	Notifier  Notifier
	Clipboard ClipboardWriter
	Browser   BrowserOpener
	Hotkeys   HotkeyRegistry
}

// Options tune the controller's timing. Zero values take the defaults.
type Options struct {
	Cooldown       time.Duration
	Debounce       time.Duration
	RequestTimeout time.Duration
	Shortcut       string
	Now            func() time.Time
}

func (o *Options) setDefaults() {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Shortcut == "" {
		o.Shortcut = DefaultShortcut
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type LiveStatus int

const (
	LiveUnknown LiveStatus = iota
	LiveOn
	LiveOff
)

func (l LiveStatus) String() string {
	switch l {
	case LiveOn:
		return "live"
	case LiveOff:
		return "offline"
	default:
		return "unknown"
	}
}

// State is a read-only view of the controller.
type State struct {
	Settings       config.Settings
	History        []store.Clip
	Live           LiveStatus
	Resolving      bool
	Clipping       bool
	CooldownUntil  time.Time
	AuthUser       string
	ShortcutActive bool
	LastError      string
}

// CooldownLeft is the time until the next clip may be requested.
func (s State) CooldownLeft(now time.Time) time.Duration {
	if left := s.CooldownUntil.Sub(now); left > 0 {
		return left
	}
	return 0
}

// ChatChannel is the channel whose chat should be shown: the configured
// channel once its broadcaster id is resolved, or "" while the name is still
// being edited or did not resolve.
func (s State) ChatChannel() string {
	if s.Settings.BroadcastID == "" {
		return ""
	}
	return s.Settings.ChannelName
}

// Rejection returns the reason a clip request would be refused right now,
// or nil when it would be sent.
func (s State) Rejection(now time.Time) error {
	switch {
	case s.Clipping:
		return ErrClipInFlight
	case s.CooldownLeft(now) > 0:
		return ErrCoolingDown
	case s.Settings.BroadcastID == "":
		return ErrNoBroadcastID
	case s.Live != LiveOn:
		return ErrNotLive
	}
	return nil
}

type Controller struct {
	api       API
	settings  SettingsStore
	history   HistoryStore
	notifier  Notifier
	clipboard ClipboardWriter
	browser   BrowserOpener
	hotkeys   HotkeyRegistry
	opts      Options
	combo     host.Combo

	channelSync  *debounce.Debouncer
	settingsSync *debounce.Debouncer

	mu        sync.Mutex
	state     State
	resolving int
	subs      map[chan struct{}]struct{}
	coolTimer *time.Timer

	// separate from mu so file writes never block readers
	saveMu sync.Mutex
	histMu sync.Mutex
}

// New builds a controller around the loaded settings and history.
func New(deps Deps, settings config.Settings, history []store.Clip, opts Options) (*Controller, error) {
	if deps.API == nil || deps.Settings == nil || deps.History == nil {
		return nil, errors.New("clipper: api and stores are required")
	}
	opts.setDefaults()
	combo, err := host.ParseCombo(opts.Shortcut)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []store.Clip{}
	}

	c := &Controller{
		api:       deps.API,
		settings:  deps.Settings,
		history:   deps.History,
		notifier:  deps.Notifier,
		clipboard: deps.Clipboard,
		browser:   deps.Browser,
		hotkeys:   deps.Hotkeys,
		opts:      opts,
		combo:     combo,
		state:     State{Settings: settings, History: history},
		subs:      map[chan struct{}]struct{}{},
	}
	if c.notifier == nil {
		c.notifier = host.LogNotifier{}
	}
	if c.clipboard == nil {
		c.clipboard = noopClipboard{}
	}
	if c.browser == nil {
		c.browser = noopBrowser{}
	}
	if c.hotkeys == nil {
		c.hotkeys = noopHotkeys{}
	}

	c.channelSync = debounce.New(opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*opts.RequestTimeout)
		defer cancel()
		if err := c.SyncChannel(ctx); err != nil {
			log.Printf("[WARN] channel sync: %v", err)
		}
	})
	c.settingsSync = debounce.New(opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
		defer cancel()
		if err := c.SyncSettings(ctx); err != nil {
			log.Printf("[WARN] settings sync: %v", err)
		}
	})
	return c, nil
}

// Start schedules the initial channel resolution and token check.
func (c *Controller) Start() {
	c.channelSync.Trigger()
	c.settingsSync.Trigger()
}

// Close cancels pending syncs, saving settings that had not been written
// yet, and releases the global shortcut.
func (c *Controller) Close() error {
	pendingChannel := c.channelSync.Stop()
	pendingSettings := c.settingsSync.Stop()

	c.mu.Lock()
	if c.coolTimer != nil {
		c.coolTimer.Stop()
	}
	active := c.state.ShortcutActive
	c.mu.Unlock()

	var errs []error
	if pendingChannel || pendingSettings {
		errs = append(errs, c.persistSettings())
	}
	if active {
		errs = append(errs, c.hotkeys.Unbind(c.combo))
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.History = slices.Clone(c.state.History)
	return s
}

// Now is the controller's clock.
func (c *Controller) Now() time.Time { return c.opts.Now() }

// Subscribe returns a channel signalled after every state change and a
// function that ends the subscription. Signals coalesce when the reader is
// slow.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
	}
}

func (c *Controller) changed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

// SetChannelName points the controller at a new channel. The old
// broadcast id and live status are dropped at once; resolution runs once
// typing has settled.
func (c *Controller) SetChannelName(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	c.mu.Lock()
	if name == c.state.Settings.ChannelName {
		c.mu.Unlock()
		return
	}
	c.state.Settings = c.state.Settings.WithChannel(name)
	c.state.Live = LiveUnknown
	c.mu.Unlock()
	c.changed()

	c.channelSync.Trigger()
	c.settingsSync.Trigger()
}

// SetBearerToken replaces the OAuth token.
func (c *Controller) SetBearerToken(token string) {
	c.setCredential(func(s *config.Settings) bool {
		token = strings.TrimSpace(token)
		if s.BearerToken == token {
			return false
		}
		s.BearerToken = token
		return true
	})
}

// SetClientID replaces the Twitch application client id.
func (c *Controller) SetClientID(id string) {
	c.setCredential(func(s *config.Settings) bool {
		id = strings.TrimSpace(id)
		if s.ClientID == id {
			return false
		}
		s.ClientID = id
		return true
	})
}

func (c *Controller) setCredential(apply func(s *config.Settings) bool) {
	c.mu.Lock()
	next := c.state.Settings
	if !apply(&next) {
		c.mu.Unlock()
		return
	}
	c.state.Settings = next
	// a channel that failed to resolve for lack of credentials gets another go
	retry := next.ChannelName != "" && (next.BroadcastID == "" || c.state.Live == LiveUnknown)
	c.mu.Unlock()
	c.changed()

	c.settingsSync.Trigger()
	if retry {
		c.channelSync.Trigger()
	}
}

// SetColorMode switches between the dark and light palettes.
func (c *Controller) SetColorMode(mode string) error {
	if mode != config.ColorModeDark && mode != config.ColorModeLight {
		return fmt.Errorf("unknown color mode %q", mode)
	}
	c.mu.Lock()
	if c.state.Settings.ColorMode == mode {
		c.mu.Unlock()
		return nil
	}
	c.state.Settings.ColorMode = mode
	c.mu.Unlock()
	c.changed()
	c.settingsSync.Trigger()
	return nil
}

// SyncChannel resolves the current channel's broadcast id, saves the
// settings and then checks whether the channel is live. Results for a
// channel that is no longer current are thrown away.
func (c *Controller) SyncChannel(ctx context.Context) error {
	c.mu.Lock()
	s := c.state.Settings
	name := s.ChannelName
	if name == "" {
		c.state.Live = LiveUnknown
		c.mu.Unlock()
		c.changed()
		return nil
	}
	c.resolving++
	c.state.Resolving = true
	c.mu.Unlock()
	c.changed()

	defer c.update(func(st *State) {
		c.resolving--
		st.Resolving = c.resolving > 0
	})

	rctx, cancel := c.requestCtx(ctx)
	id, err := c.api.ResolveBroadcastID(rctx, s.Credentials(), name)
	cancel()

	c.mu.Lock()
	if c.state.Settings.ChannelName != name {
		c.mu.Unlock()
		log.Printf("[DEBUG] dropped stale resolution for %q", name)
		return nil
	}
	notFound := errors.Is(err, twitch.ErrNotFound)
	switch {
	case notFound:
		c.state.Settings.BroadcastID = ""
		c.state.Live = LiveUnknown
		c.state.LastError = fmt.Sprintf("channel %q not found", name)
	case err != nil:
		c.state.Live = LiveUnknown
		c.state.LastError = err.Error()
	default:
		c.state.Settings.BroadcastID = id
		c.state.LastError = ""
	}
	c.mu.Unlock()
	c.changed()

	if err != nil && !notFound {
		c.notifyErr("Could not resolve channel", err)
		return fmt.Errorf("resolve %s: %w", name, err)
	}
	if notFound {
		c.notifier.Notify("Channel not found", name)
	}

	if perr := c.persistSettings(); perr != nil {
		c.notifyErr("Could not save settings", perr)
		return perr
	}
	if notFound {
		return nil
	}
	log.Printf("[INFO] resolved %s to broadcast id %s", name, id)
	return c.checkLive(ctx, s.Credentials(), name, id)
}

// RefreshLive re-checks the live status of the current channel, resolving
// it first when needed.
func (c *Controller) RefreshLive(ctx context.Context) error {
	c.mu.Lock()
	s := c.state.Settings
	c.mu.Unlock()
	if s.ChannelName == "" {
		return ErrNoChannel
	}
	if s.BroadcastID == "" {
		return c.SyncChannel(ctx)
	}
	return c.checkLive(ctx, s.Credentials(), s.ChannelName, s.BroadcastID)
}

func (c *Controller) checkLive(ctx context.Context, creds twitch.Credentials, name, id string) error {
	rctx, cancel := c.requestCtx(ctx)
	live, err := c.api.IsLive(rctx, creds, name)
	cancel()

	c.mu.Lock()
	if c.state.Settings.ChannelName != name || c.state.Settings.BroadcastID != id {
		c.mu.Unlock()
		return nil
	}
	switch {
	case err != nil:
		c.state.Live = LiveUnknown
		c.state.LastError = err.Error()
	case live:
		c.state.Live = LiveOn
	default:
		c.state.Live = LiveOff
	}
	c.mu.Unlock()
	c.changed()

	if err != nil {
		c.notifyErr("Could not check live status", err)
		return fmt.Errorf("live status of %s: %w", name, err)
	}
	log.Printf("[DEBUG] %s live=%v", name, live)
	return nil
}

// CreateClip cuts a clip of the current channel. Refusals wrap ErrRejected
// and never reach Twitch. Any attempt that reached Twitch starts the
// cooldown, successful or not. On success the clip is added to the top of
// the history and its edit URL is copied to the clipboard; a history save
// failure is returned along with the clip.
func (c *Controller) CreateClip(ctx context.Context) (store.Clip, error) {
	c.mu.Lock()
	if err := c.state.Rejection(c.opts.Now()); err != nil {
		c.mu.Unlock()
		c.notifier.Notify("Can't clip", rejectionText(err))
		return store.Clip{}, err
	}
	c.state.Clipping = true
	s := c.state.Settings
	c.mu.Unlock()
	c.changed()

	rctx, cancel := c.requestCtx(ctx)
	res, err := c.api.CreateClip(rctx, s.Credentials(), s.BroadcastID)
	cancel()

	c.mu.Lock()
	c.state.Clipping = false
	if errors.Is(err, twitch.ErrMissingCredentials) {
		c.state.LastError = err.Error()
		c.mu.Unlock()
		c.changed()
		c.notifyErr("Twitch credentials missing", err)
		return store.Clip{}, err
	}
	c.startCooldown()
	if err != nil {
		c.state.LastError = err.Error()
		c.mu.Unlock()
		c.changed()
		c.notifyErr("Clip failed", err)
		return store.Clip{}, fmt.Errorf("create clip: %w", err)
	}
	clip := store.Clip{ID: res.ID, EditURL: res.EditURL, ChannelName: s.ChannelName}
	c.state.History = store.Prepend(c.state.History, clip)
	c.state.LastError = ""
	c.mu.Unlock()
	c.changed()
	log.Printf("[INFO] clip %s created for %s", clip.ID, clip.ChannelName)

	perr := c.persistHistory()
	c.notifier.Notify("Clip created", clip.EditURL)
	if err := c.clipboard.WriteText(clip.EditURL); err != nil {
		log.Printf("[WARN] copy edit url: %v", err)
	}
	if perr != nil {
		c.notifyErr("Could not save history", perr)
		return clip, perr
	}
	return clip, nil
}

// startCooldown must be called with mu held.
func (c *Controller) startCooldown() {
	c.state.CooldownUntil = c.opts.Now().Add(c.opts.Cooldown)
	if c.coolTimer != nil {
		c.coolTimer.Stop()
	}
	c.coolTimer = time.AfterFunc(c.opts.Cooldown, c.changed)
}

// ClearHistory forgets every local clip record. Clips on Twitch are not
// touched.
func (c *Controller) ClearHistory(confirm bool) error {
	if !confirm {
		return ErrNotConfirmed
	}
	c.update(func(s *State) { s.History = []store.Clip{} })
	if err := c.persistHistory(); err != nil {
		c.notifyErr("Could not save history", err)
		return err
	}
	log.Printf("[INFO] history cleared")
	c.notifier.Notify("History cleared", "local clip records removed")
	return nil
}

// SyncSettings saves the settings and, when a token is set, looks up the
// user it belongs to. A failed lookup only clears the shown identity.
func (c *Controller) SyncSettings(ctx context.Context) error {
	perr := c.persistSettings()
	if perr != nil {
		c.notifyErr("Could not save settings", perr)
	}

	c.mu.Lock()
	s := c.state.Settings
	c.mu.Unlock()
	if s.BearerToken == "" || s.ClientID == "" {
		c.update(func(st *State) { st.AuthUser = "" })
		return perr
	}

	rctx, cancel := c.requestCtx(ctx)
	user, err := c.api.CurrentUser(rctx, s.Credentials())
	cancel()

	c.mu.Lock()
	if c.state.Settings.Credentials() != s.Credentials() {
		c.mu.Unlock()
		return perr
	}
	prev := c.state.AuthUser
	if err != nil {
		c.state.AuthUser = ""
	} else {
		c.state.AuthUser = user.DisplayName
		if c.state.AuthUser == "" {
			c.state.AuthUser = user.Login
		}
	}
	now := c.state.AuthUser
	c.mu.Unlock()
	c.changed()

	switch {
	case err != nil:
		log.Printf("[WARN] token check failed: %v", err)
	case now != prev:
		log.Printf("[INFO] authenticated as %s", user.Login)
		c.notifier.Notify("Authenticated", now)
	}
	return perr
}

// AuthURL is the Twitch authorization page for the configured client id.
func (c *Controller) AuthURL() (string, error) {
	c.mu.Lock()
	creds := c.state.Settings.Credentials()
	c.mu.Unlock()
	return c.api.AuthURL(creds)
}

// OpenAuth opens the authorization page in the browser.
func (c *Controller) OpenAuth() error {
	u, err := c.AuthURL()
	if err != nil {
		c.notifyErr("Set a client id first", err)
		return err
	}
	if err := c.browser.Open(u); err != nil {
		c.notifyErr("Could not open browser", err)
		return err
	}
	c.notifier.Notify("Authorize in the browser", "the redirect page may fail to load; copy access_token from its address bar into token.txt")
	return nil
}

// OpenChat opens the channel's popout chat in the browser.
func (c *Controller) OpenChat() error {
	c.mu.Lock()
	name := c.state.Settings.ChannelName
	c.mu.Unlock()
	if name == "" {
		return ErrNoChannel
	}
	if err := c.browser.Open(twitch.ChatPopoutURL(name)); err != nil {
		c.notifyErr("Could not open browser", err)
		return err
	}
	return nil
}

// CopyBroadcastID puts the resolved broadcast id on the clipboard.
func (c *Controller) CopyBroadcastID() error {
	c.mu.Lock()
	id := c.state.Settings.BroadcastID
	c.mu.Unlock()
	if id == "" {
		c.notifier.Notify("Nothing to copy", rejectionText(ErrNoBroadcastID))
		return ErrNoBroadcastID
	}
	if err := c.clipboard.WriteText(id); err != nil {
		c.notifyErr("Could not copy", err)
		return err
	}
	c.notifier.Notify("Copied broadcast ID", id)
	return nil
}

// Shortcut is the global clip shortcut.
func (c *Controller) Shortcut() host.Combo { return c.combo }

// ActivateShortcut registers the global clip shortcut.
func (c *Controller) ActivateShortcut() error {
	c.mu.Lock()
	active := c.state.ShortcutActive
	c.mu.Unlock()
	if active {
		return nil
	}
	err := c.hotkeys.Bind(c.combo, func() {
		if _, err := c.CreateClip(context.Background()); err != nil {
			log.Printf("[DEBUG] shortcut clip: %v", err)
		}
	})
	if err != nil {
		c.notifyErr("Could not register shortcut", err)
		return err
	}
	c.update(func(s *State) { s.ShortcutActive = true })
	c.notifier.Notify("Shortcut active", c.combo.String())
	return nil
}

// DeactivateShortcut releases the global clip shortcut.
func (c *Controller) DeactivateShortcut() error {
	c.mu.Lock()
	active := c.state.ShortcutActive
	c.mu.Unlock()
	if !active {
		return nil
	}
	if err := c.hotkeys.Unbind(c.combo); err != nil {
		c.notifyErr("Could not release shortcut", err)
		return err
	}
	c.update(func(s *State) { s.ShortcutActive = false })
	c.notifier.Notify("Shortcut inactive", c.combo.String())
	return nil
}

// ToggleShortcut flips the global shortcut on or off.
func (c *Controller) ToggleShortcut() error {
	if c.Snapshot().ShortcutActive {
		return c.DeactivateShortcut()
	}
	return c.ActivateShortcut()
}

// persistSettings writes the latest settings. Concurrent callers queue up
// and each writes whatever is current when its turn comes.
func (c *Controller) persistSettings() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	c.mu.Lock()
	s := c.state.Settings
	c.mu.Unlock()
	if err := c.settings.Save(s); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

func (c *Controller) persistHistory() error {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	c.mu.Lock()
	h := slices.Clone(c.state.History)
	c.mu.Unlock()
	if err := c.history.Save(h); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (c *Controller) notifyErr(title string, err error) {
	log.Printf("[WARN] %s: %v", strings.ToLower(title), err)
	c.notifier.Notify(title, err.Error())
}

func rejectionText(err error) string {
	return strings.TrimPrefix(err.Error(), ErrRejected.Error()+": ")
}

type noopClipboard struct{}

func (noopClipboard) WriteText(string) error { return nil }

type noopBrowser struct{}

func (noopBrowser) Open(string) error { return nil }

type noopHotkeys struct{}

func (noopHotkeys) Bind(host.Combo, func()) error { return nil }
func (noopHotkeys) Unbind(host.Combo) error       { return nil }
