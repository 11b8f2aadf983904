package clipper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thinkwright/caffeine-clipper/internal/config"
	"github.com/thinkwright/caffeine-clipper/internal/host"
	"github.com/thinkwright/caffeine-clipper/internal/store"
	"github.com/thinkwright/caffeine-clipper/internal/twitch"
)

type fakeAPI struct {
	mu sync.Mutex

	ids     map[string]string
	live    map[string]bool
	liveErr error
	clip    twitch.ClipResult
	clipErr error
	user    twitch.User
	userErr error

	// a login in resolveGate blocks its resolution until the channel is closed
	resolveGate map[string]chan struct{}
	clipGate    chan struct{}

	calls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		ids:         map[string]string{},
		live:        map[string]bool{},
		resolveGate: map[string]chan struct{}{},
		calls:       map[string]int{},
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) AuthURL(creds twitch.Credentials) (string, error) {
	return (&twitch.Client{}).AuthURL(creds)
}

func (f *fakeAPI) ResolveBroadcastID(ctx context.Context, creds twitch.Credentials, login string) (string, error) {
	f.hit("resolve")
	f.mu.Lock()
	gate := f.resolveGate[login]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if creds.ClientID == "" || creds.BearerToken == "" {
		return "", twitch.ErrMissingCredentials
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[login]
	if !ok {
		return "", twitch.ErrNotFound
	}
	return id, nil
}

func (f *fakeAPI) IsLive(ctx context.Context, creds twitch.Credentials, login string) (bool, error) {
	f.hit("live")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liveErr != nil {
		return false, f.liveErr
	}
	return f.live[login], nil
}

func (f *fakeAPI) CreateClip(ctx context.Context, creds twitch.Credentials, broadcastID string) (twitch.ClipResult, error) {
	f.hit("clip")
	f.mu.Lock()
	gate := f.clipGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if creds.ClientID == "" || creds.BearerToken == "" {
		return twitch.ClipResult{}, twitch.ErrMissingToken
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clip, f.clipErr
}

func (f *fakeAPI) CurrentUser(ctx context.Context, creds twitch.Credentials) (twitch.User, error) {
	f.hit("user")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.userErr
}

type fakeSettingsStore struct {
	mu    sync.Mutex
	saved []config.Settings
	err   error
}

func (s *fakeSettingsStore) Save(v config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, v)
	return nil
}

func (s *fakeSettingsStore) last() (config.Settings, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return config.Settings{}, 0
	}
	return s.saved[len(s.saved)-1], len(s.saved)
}

type fakeHistoryStore struct {
	mu    sync.Mutex
	saved [][]store.Clip
	err   error
}

func (s *fakeHistoryStore) Save(v []store.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, v)
	return nil
}

func (s *fakeHistoryStore) last() ([]store.Clip, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil, 0
	}
	return s.saved[len(s.saved)-1], len(s.saved)
}

type note struct{ title, body string }

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) Notify(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{title, body})
}

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, x := range n.notes {
		out = append(out, x.title)
	}
	return out
}

type fakeClipboard struct {
	mu   sync.Mutex
	text []string
}

func (c *fakeClipboard) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, s)
	return nil
}

type fakeBrowser struct {
	opened []string
	err    error
}

func (b *fakeBrowser) Open(u string) error {
	if b.err != nil {
		return b.err
	}
	b.opened = append(b.opened, u)
	return nil
}

type fakeHotkeys struct {
	mu      sync.Mutex
	handler map[host.Combo]func()
	bindErr error
}

func (h *fakeHotkeys) Bind(c host.Combo, fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bindErr != nil {
		return h.bindErr
	}
	if h.handler == nil {
		h.handler = map[host.Combo]func(){}
	}
	h.handler[c] = fn
	return nil
}

func (h *fakeHotkeys) Unbind(c host.Combo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handler, c)
	return nil
}

func (h *fakeHotkeys) press(c host.Combo) bool {
	h.mu.Lock()
	fn := h.handler[c]
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	ctrl      *Controller
	api       *fakeAPI
	settings  *fakeSettingsStore
	history   *fakeHistoryStore
	notifier  *fakeNotifier
	clipboard *fakeClipboard
	browser   *fakeBrowser
	hotkeys   *fakeHotkeys
	clock     *manualClock
}

var errBoom = errors.New("boom")

func validSettings(channel string) config.Settings {
	s := config.DefaultSettings()
	s.ClientID = "cid"
	s.BearerToken = "tok"
	s.ChannelName = channel
	return s
}

// newHarness builds a controller whose debouncers never fire on their own,
// so tests drive SyncChannel and SyncSettings explicitly.
func newHarness(t *testing.T, settings config.Settings, history []store.Clip) *harness {
	t.Helper()
	h := &harness{
		api:       newFakeAPI(),
		settings:  &fakeSettingsStore{},
		history:   &fakeHistoryStore{},
		notifier:  &fakeNotifier{},
		clipboard: &fakeClipboard{},
		browser:   &fakeBrowser{},
		hotkeys:   &fakeHotkeys{},
		clock:     &manualClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	ctrl, err := New(Deps{
		API:       h.api,
		Settings:  h.settings,
		History:   h.history,
		Notifier:  h.notifier,
		Clipboard: h.clipboard,
		Browser:   h.browser,
		Hotkeys:   h.hotkeys,
	}, settings, history, Options{
		Cooldown: 10 * time.Second,
		Debounce: time.Hour,
		Now:      h.clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })
	h.ctrl = ctrl
	return h
}
