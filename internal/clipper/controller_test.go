package clipper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkwright/caffeine-clipper/internal/config"
	"github.com/thinkwright/caffeine-clipper/internal/store"
	"github.com/thinkwright/caffeine-clipper/internal/twitch"
)

var ctx = context.Background()

func shroudReady(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, validSettings("shroud"), nil)
	h.api.set(func(f *fakeAPI) {
		f.ids["shroud"] = "37402112"
		f.live["shroud"] = true
		f.clip = twitch.ClipResult{ID: "abc123", EditURL: "https://clips.twitch.tv/edit/abc123"}
	})
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	st := h.ctrl.Snapshot()
	require.Equal(t, "37402112", st.Settings.BroadcastID)
	require.Equal(t, LiveOn, st.Live)
	return h
}

func TestCreateClip_Shroud(t *testing.T) {
	h := shroudReady(t)

	clip, err := h.ctrl.CreateClip(ctx)
	require.NoError(t, err)

	want := store.Clip{ID: "abc123", EditURL: "https://clips.twitch.tv/edit/abc123", ChannelName: "shroud"}
	assert.Equal(t, want, clip)
	assert.Equal(t, []store.Clip{want}, h.ctrl.Snapshot().History)

	saved, n := h.history.last()
	assert.Equal(t, 1, n)
	assert.Equal(t, []store.Clip{want}, saved)

	assert.Equal(t, []string{want.EditURL}, h.clipboard.text)
	assert.Contains(t, h.notifier.titles(), "Clip created")

	st := h.ctrl.Snapshot()
	assert.False(t, st.Clipping)
	assert.Equal(t, 10*time.Second, st.CooldownLeft(h.clock.Now()))
}

func TestCreateClip_NewestFirst(t *testing.T) {
	h := shroudReady(t)
	older := store.Clip{ID: "old", EditURL: "https://clips.twitch.tv/edit/old", ChannelName: "shroud"}
	h.ctrl.state.History = []store.Clip{older}

	_, err := h.ctrl.CreateClip(ctx)
	require.NoError(t, err)

	hist := h.ctrl.Snapshot().History
	require.Len(t, hist, 2)
	assert.Equal(t, "abc123", hist[0].ID)
	assert.Equal(t, older, hist[1])
}

func TestCreateClip_OfflineUser(t *testing.T) {
	h := newHarness(t, validSettings("offlineuser"), nil)
	h.api.set(func(f *fakeAPI) { f.ids["offlineuser"] = "999" })
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	assert.Equal(t, LiveOff, h.ctrl.Snapshot().Live)

	_, err := h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, ErrNotLive)
	assert.Equal(t, 0, h.api.count("clip"))
	assert.Empty(t, h.ctrl.Snapshot().History)
	_, n := h.history.last()
	assert.Equal(t, 0, n)
	assert.Contains(t, h.notifier.notes, note{"Can't clip", "channel is not live"})
}

func TestCreateClip_RejectionsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		want  error
	}{
		{
			name:  "no broadcast id",
			setup: func(h *harness) {},
			want:  ErrNoBroadcastID,
		},
		{
			name: "live unknown",
			setup: func(h *harness) {
				h.ctrl.state.Settings.BroadcastID = "1"
			},
			want: ErrNotLive,
		},
		{
			name: "known offline",
			setup: func(h *harness) {
				h.ctrl.state.Settings.BroadcastID = "1"
				h.ctrl.state.Live = LiveOff
			},
			want: ErrNotLive,
		},
		{
			name: "cooling down",
			setup: func(h *harness) {
				h.ctrl.state.Settings.BroadcastID = "1"
				h.ctrl.state.Live = LiveOn
				h.ctrl.state.CooldownUntil = h.clock.Now().Add(time.Second)
			},
			want: ErrCoolingDown,
		},
		{
			name: "in flight",
			setup: func(h *harness) {
				h.ctrl.state.Settings.BroadcastID = "1"
				h.ctrl.state.Live = LiveOn
				h.ctrl.state.Clipping = true
			},
			want: ErrClipInFlight,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, validSettings("shroud"), nil)
			tt.setup(h)
			before := h.ctrl.Snapshot()

			_, err := h.ctrl.CreateClip(ctx)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrRejected)
			assert.Equal(t, 0, h.api.total())
			assert.Equal(t, before, h.ctrl.Snapshot(), "a rejection changes nothing")
		})
	}
}

func TestCreateClip_CooldownBlocksSecondAttempt(t *testing.T) {
	h := shroudReady(t)

	_, err := h.ctrl.CreateClip(ctx)
	require.NoError(t, err)

	h.clock.Advance(9 * time.Second)
	_, err = h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, ErrCoolingDown)
	assert.Equal(t, 1, h.api.count("clip"))
	assert.Len(t, h.ctrl.Snapshot().History, 1)

	h.clock.Advance(time.Second)
	_, err = h.ctrl.CreateClip(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.api.count("clip"))
	assert.Len(t, h.ctrl.Snapshot().History, 2)
}

func TestCreateClip_FailureStillCoolsDown(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "no edit url", err: twitch.ErrNoEditURL},
		{name: "api error", err: &twitch.APIError{Status: 503, Kind: "Service Unavailable"}},
		{name: "transport", err: errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := shroudReady(t)
			h.api.set(func(f *fakeAPI) { f.clipErr = tt.err })

			_, err := h.ctrl.CreateClip(ctx)
			require.ErrorIs(t, err, tt.err)

			st := h.ctrl.Snapshot()
			assert.Empty(t, st.History)
			assert.False(t, st.Clipping)
			assert.NotEmpty(t, st.LastError)
			assert.Equal(t, 10*time.Second, st.CooldownLeft(h.clock.Now()))
			_, n := h.history.last()
			assert.Equal(t, 0, n)
			assert.Contains(t, h.notifier.titles(), "Clip failed")
			assert.Empty(t, h.clipboard.text)
		})
	}
}

func TestCreateClip_MissingCredentialsSkipsCooldown(t *testing.T) {
	h := shroudReady(t)
	h.ctrl.state.Settings.BearerToken = ""

	_, err := h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, twitch.ErrMissingCredentials)

	st := h.ctrl.Snapshot()
	assert.Zero(t, st.CooldownLeft(h.clock.Now()))
	assert.False(t, st.Clipping)
	assert.Contains(t, h.notifier.titles(), "Twitch credentials missing")
}

func TestCreateClip_ConcurrentTriggerRejected(t *testing.T) {
	h := shroudReady(t)
	gate := make(chan struct{})
	h.api.set(func(f *fakeAPI) { f.clipGate = gate })

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.CreateClip(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.api.count("clip") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.ctrl.Snapshot().Clipping)

	_, err := h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, ErrClipInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.api.count("clip"))
	assert.Len(t, h.ctrl.Snapshot().History, 1)
}

func TestCreateClip_HistorySaveFailureIsReturned(t *testing.T) {
	h := shroudReady(t)
	h.history.err = errBoom

	clip, err := h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "abc123", clip.ID)
	assert.Len(t, h.ctrl.Snapshot().History, 1, "the clip was still cut")
	assert.Contains(t, h.notifier.titles(), "Could not save history")
}

func TestSetChannelName_InvalidatesResolvedState(t *testing.T) {
	h := shroudReady(t)

	h.ctrl.SetChannelName("summit1g")
	st := h.ctrl.Snapshot()
	assert.Equal(t, "summit1g", st.Settings.ChannelName)
	assert.Empty(t, st.Settings.BroadcastID)
	assert.Equal(t, LiveUnknown, st.Live)

	// the old channel's id must never be used for the new one
	_, err := h.ctrl.CreateClip(ctx)
	require.ErrorIs(t, err, ErrNoBroadcastID)
	assert.Equal(t, 0, h.api.count("clip"))
}

func TestSetChannelName_SameNameKeepsState(t *testing.T) {
	h := shroudReady(t)
	h.ctrl.SetChannelName(" Shroud ")
	st := h.ctrl.Snapshot()
	assert.Equal(t, "37402112", st.Settings.BroadcastID)
	assert.Equal(t, LiveOn, st.Live)
}

func TestChatChannel_FollowsOnlyResolvedChannels(t *testing.T) {
	h := shroudReady(t)
	assert.Equal(t, "shroud", h.ctrl.Snapshot().ChatChannel())

	// partial names typed before the debounce fires have no chat
	for _, partial := range []string{"s", "su", "sum", "summit1g"} {
		h.ctrl.SetChannelName(partial)
		assert.Empty(t, h.ctrl.Snapshot().ChatChannel(), partial)
	}

	h.api.set(func(f *fakeAPI) {
		f.ids["summit1g"] = "26490481"
		f.live["summit1g"] = true
	})
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	assert.Equal(t, "summit1g", h.ctrl.Snapshot().ChatChannel())

	h.ctrl.SetChannelName("nosuchchannel")
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	assert.Empty(t, h.ctrl.Snapshot().ChatChannel(), "unresolved channel has no chat")
}

func TestSyncChannel_ResolvePersistThenLive(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.api.set(func(f *fakeAPI) {
		f.ids["shroud"] = "37402112"
		f.live["shroud"] = true
	})

	require.NoError(t, h.ctrl.SyncChannel(ctx))

	saved, n := h.settings.last()
	require.Equal(t, 1, n)
	assert.Equal(t, "37402112", saved.BroadcastID)
	assert.Equal(t, "shroud", saved.ChannelName)
	assert.Equal(t, 1, h.api.count("resolve"))
	assert.Equal(t, 1, h.api.count("live"))
	assert.False(t, h.ctrl.Snapshot().Resolving)
}

func TestSyncChannel_NotFound(t *testing.T) {
	h := newHarness(t, validSettings("nosuchchannel"), nil)

	require.NoError(t, h.ctrl.SyncChannel(ctx))

	st := h.ctrl.Snapshot()
	assert.Empty(t, st.Settings.BroadcastID)
	assert.Equal(t, LiveUnknown, st.Live)
	assert.Equal(t, 0, h.api.count("live"))
	assert.Contains(t, h.notifier.notes, note{"Channel not found", "nosuchchannel"})
}

func TestSyncChannel_MissingCredentials(t *testing.T) {
	s := validSettings("shroud")
	s.BearerToken = ""
	h := newHarness(t, s, nil)

	err := h.ctrl.SyncChannel(ctx)
	require.ErrorIs(t, err, twitch.ErrMissingCredentials)
	st := h.ctrl.Snapshot()
	assert.Equal(t, LiveUnknown, st.Live)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, 0, h.api.count("live"))
}

func TestSyncChannel_LiveCheckError(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.api.set(func(f *fakeAPI) {
		f.ids["shroud"] = "37402112"
		f.liveErr = errBoom
	})

	err := h.ctrl.SyncChannel(ctx)
	require.ErrorIs(t, err, errBoom)
	st := h.ctrl.Snapshot()
	assert.Equal(t, "37402112", st.Settings.BroadcastID)
	assert.Equal(t, LiveUnknown, st.Live)
	assert.Contains(t, h.notifier.titles(), "Could not check live status")
}

func TestSyncChannel_StaleResolutionDiscarded(t *testing.T) {
	h := newHarness(t, validSettings("slowchannel"), nil)
	gate := make(chan struct{})
	h.api.set(func(f *fakeAPI) {
		f.ids["slowchannel"] = "111"
		f.ids["fastchannel"] = "222"
		f.live["slowchannel"] = true
		f.live["fastchannel"] = true
		f.resolveGate["slowchannel"] = gate
	})

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SyncChannel(ctx) }()
	require.Eventually(t, func() bool { return h.api.count("resolve") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.ctrl.Snapshot().Resolving)

	h.ctrl.SetChannelName("fastchannel")
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	assert.True(t, h.ctrl.Snapshot().Resolving, "slow resolution still running")

	close(gate)
	require.NoError(t, <-done)

	st := h.ctrl.Snapshot()
	assert.Equal(t, "fastchannel", st.Settings.ChannelName)
	assert.Equal(t, "222", st.Settings.BroadcastID)
	assert.Equal(t, LiveOn, st.Live)
	assert.False(t, st.Resolving)
	assert.Equal(t, 1, h.api.count("live"), "stale result never reaches the live check")

	saved, _ := h.settings.last()
	assert.Equal(t, "222", saved.BroadcastID)
}

func TestSyncChannel_EmptyChannel(t *testing.T) {
	h := newHarness(t, validSettings(""), nil)
	require.NoError(t, h.ctrl.SyncChannel(ctx))
	assert.Equal(t, 0, h.api.total())
}

func TestSyncChannel_PersistError(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.api.set(func(f *fakeAPI) { f.ids["shroud"] = "1" })
	h.settings.err = errBoom

	err := h.ctrl.SyncChannel(ctx)
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, h.notifier.titles(), "Could not save settings")
}

func TestRefreshLive(t *testing.T) {
	h := shroudReady(t)
	h.api.set(func(f *fakeAPI) { f.live["shroud"] = false })

	require.NoError(t, h.ctrl.RefreshLive(ctx))
	assert.Equal(t, LiveOff, h.ctrl.Snapshot().Live)
	assert.Equal(t, 1, h.api.count("resolve"), "resolved id is reused")

	h.ctrl.SetChannelName("")
	assert.ErrorIs(t, h.ctrl.RefreshLive(ctx), ErrNoChannel)
}

func TestClearHistory(t *testing.T) {
	hist := []store.Clip{{ID: "a", EditURL: "u", ChannelName: "shroud"}}
	h := newHarness(t, validSettings("shroud"), hist)

	require.ErrorIs(t, h.ctrl.ClearHistory(false), ErrNotConfirmed)
	assert.Len(t, h.ctrl.Snapshot().History, 1)

	require.NoError(t, h.ctrl.ClearHistory(true))
	assert.Empty(t, h.ctrl.Snapshot().History)
	assert.NotNil(t, h.ctrl.Snapshot().History)

	saved, n := h.history.last()
	assert.Equal(t, 1, n)
	assert.Empty(t, saved)
	assert.Equal(t, 0, h.api.total())
}

func TestSyncSettings(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.api.set(func(f *fakeAPI) { f.user = twitch.User{ID: "1", Login: "caffeine", DisplayName: "Caffeine"} })

	require.NoError(t, h.ctrl.SyncSettings(ctx))
	assert.Equal(t, "Caffeine", h.ctrl.Snapshot().AuthUser)
	_, n := h.settings.last()
	assert.Equal(t, 1, n)
	assert.Contains(t, h.notifier.titles(), "Authenticated")

	h.api.set(func(f *fakeAPI) { f.userErr = &twitch.APIError{Status: 401, Kind: "Unauthorized"} })
	require.NoError(t, h.ctrl.SyncSettings(ctx), "token check failure is not fatal")
	assert.Empty(t, h.ctrl.Snapshot().AuthUser)
}

func TestSyncSettings_NoTokenSkipsUserLookup(t *testing.T) {
	s := validSettings("shroud")
	s.BearerToken = ""
	h := newHarness(t, s, nil)
	h.ctrl.state.AuthUser = "someone"

	require.NoError(t, h.ctrl.SyncSettings(ctx))
	assert.Equal(t, 0, h.api.count("user"))
	assert.Empty(t, h.ctrl.Snapshot().AuthUser)
}

func TestSyncSettings_PersistErrorReturned(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.settings.err = errBoom
	require.ErrorIs(t, h.ctrl.SyncSettings(ctx), errBoom)
}

func TestDebouncedChannelSync(t *testing.T) {
	api := newFakeAPI()
	api.ids["shroud"] = "37402112"
	api.live["shroud"] = true
	settings := &fakeSettingsStore{}
	ctrl, err := New(Deps{API: api, Settings: settings, History: &fakeHistoryStore{}},
		validSettings(""), nil, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)
	defer ctrl.Close()

	for _, partial := range []string{"s", "sh", "shr", "shro", "shrou", "shroud"} {
		ctrl.SetChannelName(partial)
	}
	require.Eventually(t, func() bool { return ctrl.Snapshot().Live == LiveOn }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, api.count("resolve"), "only the settled name is resolved")
	assert.Equal(t, "37402112", ctrl.Snapshot().Settings.BroadcastID)
}

func TestSetBearerToken_RetriesResolution(t *testing.T) {
	api := newFakeAPI()
	api.ids["shroud"] = "37402112"
	api.live["shroud"] = true
	api.user = twitch.User{Login: "caffeine"}
	s := validSettings("shroud")
	s.BearerToken = ""
	ctrl, err := New(Deps{API: api, Settings: &fakeSettingsStore{}, History: &fakeHistoryStore{}},
		s, nil, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer ctrl.Close()

	ctrl.SetBearerToken("  fresh-token \n")
	assert.Equal(t, "fresh-token", ctrl.Snapshot().Settings.BearerToken)

	require.Eventually(t, func() bool {
		st := ctrl.Snapshot()
		return st.Live == LiveOn && st.AuthUser == "caffeine"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSetColorMode(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	require.NoError(t, h.ctrl.SetColorMode(config.ColorModeLight))
	assert.Equal(t, config.ColorModeLight, h.ctrl.Snapshot().Settings.ColorMode)
	assert.Error(t, h.ctrl.SetColorMode("sepia"))
}

func TestOpenAuth(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	require.NoError(t, h.ctrl.OpenAuth())
	require.Len(t, h.browser.opened, 1)
	assert.Contains(t, h.browser.opened[0], "client_id=cid")
	assert.Contains(t, h.browser.opened[0], "response_type=token")
	last := h.notifier.notes[len(h.notifier.notes)-1]
	assert.Equal(t, "Authorize in the browser", last.title)
	assert.Contains(t, last.body, "access_token", "tells the user where the token is")

	h.ctrl.SetClientID("")
	assert.ErrorIs(t, h.ctrl.OpenAuth(), twitch.ErrMissingClientID)
	assert.Len(t, h.browser.opened, 1)
}

func TestOpenChat(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	require.NoError(t, h.ctrl.OpenChat())
	assert.Equal(t, []string{"https://www.twitch.tv/popout/shroud/chat?popout="}, h.browser.opened)

	h.ctrl.SetChannelName("")
	assert.ErrorIs(t, h.ctrl.OpenChat(), ErrNoChannel)
}

func TestCopyBroadcastID(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	assert.ErrorIs(t, h.ctrl.CopyBroadcastID(), ErrNoBroadcastID)

	h = shroudReady(t)
	require.NoError(t, h.ctrl.CopyBroadcastID())
	assert.Equal(t, []string{"37402112"}, h.clipboard.text)
}

func TestShortcut(t *testing.T) {
	h := shroudReady(t)
	combo := h.ctrl.Shortcut()
	assert.Equal(t, "ctrl+shift+s", combo.String())

	require.NoError(t, h.ctrl.ActivateShortcut())
	assert.True(t, h.ctrl.Snapshot().ShortcutActive)

	require.True(t, h.hotkeys.press(combo))
	assert.Len(t, h.ctrl.Snapshot().History, 1)

	// held key repeats land in the cooldown
	require.True(t, h.hotkeys.press(combo))
	assert.Equal(t, 1, h.api.count("clip"))

	require.NoError(t, h.ctrl.ToggleShortcut())
	assert.False(t, h.ctrl.Snapshot().ShortcutActive)
	assert.False(t, h.hotkeys.press(combo))
}

func TestShortcut_BindError(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.hotkeys.bindErr = errBoom
	require.ErrorIs(t, h.ctrl.ActivateShortcut(), errBoom)
	assert.False(t, h.ctrl.Snapshot().ShortcutActive)
}

func TestNew_InvalidShortcut(t *testing.T) {
	_, err := New(Deps{API: newFakeAPI(), Settings: &fakeSettingsStore{}, History: &fakeHistoryStore{}},
		config.DefaultSettings(), nil, Options{Shortcut: "s"})
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	ch, cancel := h.ctrl.Subscribe()

	h.ctrl.SetChannelName("summit1g")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}

	cancel()
	h.ctrl.SetChannelName("shroud")
	select {
	case <-ch:
		t.Fatal("signal after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), []store.Clip{{ID: "a"}})
	st := h.ctrl.Snapshot()
	st.History[0].ID = "mutated"
	st.Settings.ChannelName = "mutated"
	assert.Equal(t, "a", h.ctrl.Snapshot().History[0].ID)
	assert.Equal(t, "shroud", h.ctrl.Snapshot().Settings.ChannelName)
}

func TestClose_SavesPendingSettings(t *testing.T) {
	h := newHarness(t, validSettings("shroud"), nil)
	h.ctrl.SetChannelName("summit1g")
	require.NoError(t, h.ctrl.Close())

	saved, n := h.settings.last()
	require.Equal(t, 1, n)
	assert.Equal(t, "summit1g", saved.ChannelName)
}

func TestConcurrentUse(t *testing.T) {
	h := shroudReady(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.CreateClip(ctx)
			h.ctrl.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.api.count("clip"))
	assert.Len(t, h.ctrl.Snapshot().History, 1)
}
