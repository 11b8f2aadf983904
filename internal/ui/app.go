package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thinkwright/caffeine-clipper/internal/chat"
	"github.com/thinkwright/caffeine-clipper/internal/clipper"
	"github.com/thinkwright/caffeine-clipper/internal/config"
	"github.com/thinkwright/caffeine-clipper/internal/host"
	"github.com/thinkwright/caffeine-clipper/internal/store"
	"github.com/thinkwright/caffeine-clipper/internal/twitch"
)

// Controller is what the TUI needs from the clip workflow.
type Controller interface {
	Snapshot() clipper.State
	Subscribe() (<-chan struct{}, func())
	Now() time.Time
	Shortcut() host.Combo

	SetChannelName(name string)
	SetClientID(id string)
	SetBearerToken(token string)
	SetColorMode(mode string) error

	CreateClip(ctx context.Context) (store.Clip, error)
	RefreshLive(ctx context.Context) error
	ClearHistory(confirm bool) error
	OpenAuth() error
	OpenChat() error
	CopyBroadcastID() error
	ToggleShortcut() error
}

// ClipLookup fetches details for a history entry.
type ClipLookup interface {
	GetClip(ctx context.Context, creds twitch.Credentials, id string) (twitch.ClipInfo, error)
}

type field int

const (
	fieldHistory field = iota
	fieldChannel
	fieldClientID
	fieldToken
	fieldCount
)

type (
	stateMsg  struct{}
	tickMsg   time.Time
	noticeMsg Notice
	chatMsg   chat.Message
	clipMsg   struct {
		clip store.Clip
		err  error
	}
	lookupMsg struct {
		info twitch.ClipInfo
		err  error
	}
	actionMsg struct{ err error }
)

const requestTimeout = 20 * time.Second

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateMsg{}
	}
}

func waitForNotice(ch <-chan Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func waitForChat(ch <-chan chat.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		m, ok := <-ch
		if !ok {
			return nil
		}
		return chatMsg(m)
	}
}

type Model struct {
	ctrl        Controller
	lookup      ClipLookup
	changes     <-chan struct{}
	unsubscribe func()
	notices     <-chan Notice
	chatIn      <-chan chat.Message
	dataDir     string

	state   clipper.State
	pal     Palette
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	inputs  [fieldCount]textinput.Model
	history HistoryPane
	chat    ChatPane
	focus   field

	notice       Notice
	clipInfo     string
	confirmClear bool
	confirmQuit  bool
	width        int
	height       int
	ready        bool
}

// Options wires optional feeds into the TUI.
type Options struct {
	Lookup  ClipLookup
	Notices *Notices
	Chat    <-chan chat.Message
	DataDir string
}

func NewModel(ctrl Controller, opts Options) Model {
	st := ctrl.Snapshot()
	pal := PaletteFor(st.Settings.ColorMode)
	changes, unsubscribe := ctrl.Subscribe()

	m := Model{
		ctrl:        ctrl,
		lookup:      opts.Lookup,
		changes:     changes,
		unsubscribe: unsubscribe,
		chatIn:      opts.Chat,
		dataDir:     opts.DataDir,
		state:       st,
		pal:         pal,
		keys:        defaultKeyMap(),
		help:        help.New(),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		history:     NewHistoryPane(pal),
	}
	if opts.Notices != nil {
		m.notices = opts.Notices.C()
	}

	m.inputs[fieldChannel] = m.newInput("channel  ", "twitch login", st.Settings.ChannelName)
	m.inputs[fieldClientID] = m.newInput("client id", "from dev.twitch.tv", st.Settings.ClientID)
	tok := m.newInput("token    ", "paste or drop into token.txt", st.Settings.BearerToken)
	tok.EchoMode = textinput.EchoPassword
	tok.EchoCharacter = '•'
	m.inputs[fieldToken] = tok

	m.applyPalette()
	m.history.SetClips(st.History)
	m.chat.Reset(st.ChatChannel())

	if st.Settings.ChannelName == "" {
		m.setFocus(fieldChannel)
	} else {
		m.setFocus(fieldHistory)
	}
	return m
}

func (m Model) newInput(prompt, placeholder, value string) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt + " "
	in.Placeholder = placeholder
	in.CharLimit = 256
	in.SetValue(value)
	return in
}

func (m *Model) applyPalette() {
	for i := fieldChannel; i < fieldCount; i++ {
		m.inputs[i].PromptStyle = m.pal.Style(m.pal.Accent)
		m.inputs[i].TextStyle = m.pal.Style(m.pal.Text)
		m.inputs[i].PlaceholderStyle = m.pal.Style(m.pal.Dim)
		m.inputs[i].Cursor.Style = m.pal.Style(m.pal.Focus)
	}
	m.history.SetStyles(m.pal)
	m.spinner.Style = m.pal.Style(m.pal.Accent)
	m.help.Styles.ShortKey = m.pal.Style(m.pal.Accent)
	m.help.Styles.ShortDesc = m.pal.Style(m.pal.Dim)
	m.help.Styles.FullKey = m.pal.Style(m.pal.Accent)
	m.help.Styles.FullDesc = m.pal.Style(m.pal.Dim)
}

func (m *Model) setFocus(f field) tea.Cmd {
	m.focus = f
	var cmd tea.Cmd
	for i := fieldChannel; i < fieldCount; i++ {
		if i == f {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	if f == fieldHistory {
		m.history.Focus()
	} else {
		m.history.Blur()
	}
	return cmd
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		waitForChange(m.changes),
		waitForNotice(m.notices),
		waitForChat(m.chatIn),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.syncState()
		return m, waitForChange(m.changes)

	case noticeMsg:
		m.notice = Notice(msg)
		return m, waitForNotice(m.notices)

	case chatMsg:
		if strings.EqualFold(msg.Channel, m.state.Settings.ChannelName) {
			m.chat.Add(chat.Message(msg))
		}
		return m, waitForChat(m.chatIn)

	case clipMsg:
		// the controller already notified; nothing else to do
		return m, nil

	case lookupMsg:
		if msg.err != nil {
			m.clipInfo = "lookup failed: " + msg.err.Error()
		} else {
			m.clipInfo = fmt.Sprintf("%s · %d views · %.0fs · %s", msg.info.Title, msg.info.ViewCount, msg.info.Duration, msg.info.URL)
		}
		return m, nil

	case actionMsg:
		return m, nil

	case tea.KeyMsg:
		if m.confirmQuit {
			return m.handleConfirmQuit(msg)
		}
		if m.confirmClear {
			return m.handleConfirmClear(msg)
		}
		if m.focus != fieldHistory {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// syncState pulls a fresh snapshot into the widgets without clobbering a
// field the user is typing in.
func (m *Model) syncState() {
	prevMode := m.state.Settings.ColorMode
	m.state = m.ctrl.Snapshot()
	s := m.state.Settings

	if m.state.Settings.ColorMode != prevMode {
		m.pal = PaletteFor(s.ColorMode)
		m.applyPalette()
	}
	values := map[field]string{fieldChannel: s.ChannelName, fieldClientID: s.ClientID, fieldToken: s.BearerToken}
	for f, v := range values {
		if m.focus != f && m.inputs[f].Value() != v {
			m.inputs[f].SetValue(v)
		}
	}
	m.history.SetClips(m.state.History)
	m.chat.Reset(m.state.ChatChannel())
}

func (m Model) handleConfirmQuit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "q", "enter", "ctrl+c":
		m.unsubscribe()
		return m, tea.Quit
	default:
		m.confirmQuit = false
	}
	return m, nil
}

func (m Model) handleConfirmClear(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmClear = false
	if msg.String() != "y" {
		return m, nil
	}
	err := m.ctrl.ClearHistory(true)
	if err == nil {
		m.clipInfo = ""
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.confirmQuit = true
		return m, nil
	case "esc", "enter":
		return m, m.setFocus(fieldHistory)
	case "tab":
		return m, m.setFocus((m.focus + 1) % fieldCount)
	case "shift+tab":
		return m, m.setFocus((m.focus + fieldCount - 1) % fieldCount)
	}

	f := m.focus
	before := m.inputs[f].Value()
	var cmd tea.Cmd
	m.inputs[f], cmd = m.inputs[f].Update(msg)
	if v := m.inputs[f].Value(); v != before {
		// every keystroke goes to the controller; it debounces
		switch f {
		case fieldChannel:
			m.ctrl.SetChannelName(v)
		case fieldClientID:
			m.ctrl.SetClientID(v)
		case fieldToken:
			m.ctrl.SetBearerToken(v)
		}
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if msg.String() == "ctrl+c" {
			m.unsubscribe()
			return m, tea.Quit
		}
		m.confirmQuit = true
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Clip):
		return m, m.clipCmd()

	case key.Matches(msg, m.keys.Refresh):
		ctrl := m.ctrl
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return actionMsg{err: ctrl.RefreshLive(ctx)}
		}

	case key.Matches(msg, m.keys.Lookup):
		return m, m.lookupCmd()

	case key.Matches(msg, m.keys.Clear):
		if m.history.Len() > 0 {
			m.confirmClear = true
		}
		return m, nil

	case key.Matches(msg, m.keys.Edit):
		return m, m.setFocus(fieldChannel)

	case key.Matches(msg, m.keys.Focus):
		if msg.String() == "shift+tab" {
			return m, m.setFocus(fieldCount - 1)
		}
		return m, m.setFocus(fieldChannel)

	case key.Matches(msg, m.keys.Chat):
		if err := m.ctrl.OpenChat(); err != nil {
			m.notice = Notice{Title: "Open chat", Body: err.Error(), At: time.Now()}
		}
		return m, nil

	case key.Matches(msg, m.keys.Auth):
		_ = m.ctrl.OpenAuth()
		return m, nil

	case key.Matches(msg, m.keys.CopyID):
		_ = m.ctrl.CopyBroadcastID()
		return m, nil

	case key.Matches(msg, m.keys.Shortcut):
		_ = m.ctrl.ToggleShortcut()
		return m, nil

	case key.Matches(msg, m.keys.Theme):
		next := config.ColorModeLight
		if m.state.Settings.ColorMode == config.ColorModeLight {
			next = config.ColorModeDark
		}
		_ = m.ctrl.SetColorMode(next)
		return m, nil
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m Model) clipCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		clip, err := ctrl.CreateClip(ctx)
		return clipMsg{clip: clip, err: err}
	}
}

func (m *Model) lookupCmd() tea.Cmd {
	clip, ok := m.history.Selected()
	if !ok || m.lookup == nil {
		return nil
	}
	m.clipInfo = "looking up " + clip.ID + "..."
	lookup, creds := m.lookup, m.state.Settings.Credentials()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		info, err := lookup.GetClip(ctx, creds, clip.ID)
		return lookupMsg{info: info, err: err}
	}
}

// ─── Layout ───────────────────────────────────────────────────────────

func (m Model) leftWidth() int {
	return max(m.width*40/100, 38)
}

func (m Model) bodyHeight() int {
	footer := 2
	if m.help.ShowAll {
		footer = 5
	}
	return max(m.height-footer-1, 8)
}

func (m *Model) layout() {
	rightW := m.width - m.leftWidth()
	histH := m.bodyHeight()*55/100 - 2
	for i := fieldChannel; i < fieldCount; i++ {
		m.inputs[i].Width = max(m.leftWidth()-16, 8)
	}
	m.history.SetSize(rightW-2, histH-1)
	m.help.Width = m.width
}

func (m Model) View() string {
	if !m.ready {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	leftW := m.leftWidth()
	rightW := m.width - leftW
	bodyH := m.bodyHeight()

	left := m.pal.Panel("CHANNEL", m.renderChannel(leftW-2), leftW, bodyH-2, m.focus != fieldHistory)

	histH := bodyH*55/100 - 2
	chatH := bodyH - histH - 4
	histContent := m.history.View()
	if m.clipInfo != "" {
		histContent += "\n" + m.pal.Style(m.pal.Dim).Render(" "+m.clipInfo)
	}
	if m.history.Len() == 0 {
		histContent = m.pal.Style(m.pal.Dim).Render(" no clips yet, press c while the channel is live")
	}
	histTitle := fmt.Sprintf("HISTORY (%d)", m.history.Len())
	hist := m.pal.Panel(histTitle, histContent, rightW, histH, m.focus == fieldHistory)
	chatTitle := "CHAT"
	if m.chat.channel != "" {
		chatTitle = "CHAT #" + strings.ToUpper(m.chat.channel)
	}
	chatBox := m.pal.Panel(chatTitle, m.chat.View(m.pal, rightW-2, chatH), rightW, chatH, false)

	right := lipgloss.JoinVertical(lipgloss.Left, hist, chatBox)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	switch {
	case m.confirmQuit:
		return overlayCenter(b.String(), m.pal.renderConfirm("QUIT", "Exit caffeine-clipper?", ""), m.width, m.height)
	case m.confirmClear:
		q := fmt.Sprintf("Clear all %d clips from history?", m.history.Len())
		return overlayCenter(b.String(), m.pal.renderConfirm("CLEAR HISTORY", q, "Clips stay on Twitch. This can't be undone."), m.width, m.height)
	}
	return b.String()
}

func (m Model) renderHeader() string {
	bg := lipgloss.NewStyle().Background(m.pal.BarBg)
	title := bg.Render(" ") + bg.Foreground(m.pal.Accent).Bold(true).Render("▶ CAFFEINE CLIPPER")

	var status string
	now := m.ctrl.Now()
	switch {
	case m.state.Clipping:
		status = bg.Foreground(m.pal.Yellow).Render(m.spinner.View() + " CLIPPING")
	case m.state.CooldownLeft(now) > 0:
		secs := int(m.state.CooldownLeft(now).Round(time.Second).Seconds())
		status = bg.Foreground(m.pal.Yellow).Render(fmt.Sprintf("COOLDOWN %ds", secs))
	case m.state.Rejection(now) == nil:
		status = bg.Foreground(m.pal.Green).Bold(true).Render("READY")
	default:
		status = bg.Foreground(m.pal.Dim).Render("NOT READY")
	}

	clock := bg.Foreground(m.pal.BarText).Render(time.Now().Format("15:04:05") + "  ")
	used := visibleLen(title) + visibleLen(status) + visibleLen(clock) + 3
	spacer := bg.Render(strings.Repeat(" ", max(m.width-used, 1)))
	return title + bg.Render("   ") + status + spacer + clock
}

func (m Model) renderChannel(w int) string {
	dim := m.pal.Style(m.pal.Dim)
	val := m.pal.Style(m.pal.Text)
	s := m.state

	var live string
	switch {
	case s.Resolving:
		live = m.pal.Style(m.pal.Yellow).Render(m.spinner.View() + " resolving")
	case s.Settings.ChannelName == "":
		live = dim.Render("no channel")
	case s.Live == clipper.LiveOn:
		live = m.pal.Style(m.pal.Red).Bold(true).Render("● LIVE")
	case s.Live == clipper.LiveOff:
		live = dim.Render("○ offline")
	default:
		live = dim.Render("? unknown")
	}

	bid := s.Settings.BroadcastID
	if bid == "" {
		bid = "-"
	}
	user := s.AuthUser
	if user == "" {
		user = "not authenticated"
	}
	shortcut := "off"
	if s.ShortcutActive {
		shortcut = "on"
	}

	row := func(label, value string) string {
		return " " + dim.Render(fmt.Sprintf("%-10s", label)) + value
	}

	lines := []string{
		"",
		" " + m.inputs[fieldChannel].View(),
		" " + m.inputs[fieldClientID].View(),
		" " + m.inputs[fieldToken].View(),
		"",
		row("status", live),
		row("broadcast", val.Render(bid)),
		row("account", val.Render(user)),
		row("shortcut", val.Render(fmt.Sprintf("%s (%s)", m.ctrl.Shortcut(), shortcut))),
		row("theme", val.Render(s.Settings.ColorMode)),
	}
	if s.LastError != "" {
		lines = append(lines, "", " "+m.pal.Style(m.pal.Red).Render(truncateToWidth(s.LastError, max(w-2, 1))))
	}
	if m.dataDir != "" {
		lines = append(lines, "", " "+dim.Render(truncateToWidth("token file: "+m.dataDir+"/token.txt", max(w-2, 1))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusBar() string {
	bg := lipgloss.NewStyle().Background(m.pal.BarBg)

	helpView := m.help.View(m.keys)
	if m.focus != fieldHistory {
		helpView = m.help.ShortHelpView([]key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter/esc", "done")),
			m.keys.Focus,
		})
	}

	notice := ""
	if m.notice.Title != "" && time.Since(m.notice.At) < 15*time.Second {
		notice = m.notice.Title
		if m.notice.Body != "" {
			notice += ": " + m.notice.Body
		}
	}

	lines := strings.Split(helpView, "\n")
	last := len(lines) - 1
	if notice != "" {
		room := max(m.width-visibleLen(lines[last])-4, 0)
		n := bg.Foreground(m.pal.BarText).Render(truncateToWidth(notice, room))
		pad := max(m.width-visibleLen(lines[last])-visibleLen(n)-2, 1)
		lines[last] = lines[last] + strings.Repeat(" ", pad) + n
	}
	for i, l := range lines {
		lines[i] = bg.Render(" ") + l + bg.Render(strings.Repeat(" ", max(m.width-visibleLen(l)-1, 0)))
	}
	return strings.Join(lines, "\n")
}
