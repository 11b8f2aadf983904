// Package chat tails a channel's Twitch chat anonymously so the streamer can
// see what the room is reacting to before cutting a clip.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Message is one chat line.
type Message struct {
	Channel string
	User    string
	Text    string
	Color   string
	At      time.Time
}

// ircClient is the part of *twitch.Client the tail uses.
type ircClient interface {
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Depart(channel string)
	Connect() error
	Disconnect() error
}

// Tail follows at most one channel at a time and delivers its messages on
// a buffered channel. Messages are dropped when the reader falls behind.
type Tail struct {
	client ircClient
	out    chan Message

	mu      sync.Mutex
	channel string
}

// NewTail makes a tail on an anonymous (read only) IRC connection.
func NewTail(buffer int) *Tail {
	return newTail(twitch.NewAnonymousClient(), buffer)
}

func newTail(c ircClient, buffer int) *Tail {
	t := &Tail{client: c, out: make(chan Message, buffer)}
	c.OnPrivateMessage(t.handle)
	return t
}

func (t *Tail) Messages() <-chan Message { return t.out }

// Channel returns the channel currently followed.
func (t *Tail) Channel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

// Follow switches the tail to channel. An empty name just leaves the
// current one.
func (t *Tail) Follow(channel string) {
	channel = normalize(channel)

	t.mu.Lock()
	prev := t.channel
	if prev == channel {
		t.mu.Unlock()
		return
	}
	t.channel = channel
	t.mu.Unlock()

	if prev != "" {
		t.client.Depart(prev)
	}
	if channel != "" {
		t.client.Join(channel)
		log.Printf("[DEBUG] chat: following #%s", channel)
	}
}

// Run keeps the IRC connection open until ctx is done.
func (t *Tail) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := t.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			log.Printf("[WARN] chat disconnect: %v", err)
		}
	}()

	err := t.client.Connect()
	if err == nil || errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("chat connect: %w", err)
}

func (t *Tail) handle(msg twitch.PrivateMessage) {
	// lines from a channel we just departed can still arrive
	if normalize(msg.Channel) != t.Channel() {
		return
	}
	m := Message{
		Channel: msg.Channel,
		User:    msg.User.DisplayName,
		Text:    msg.Message,
		Color:   msg.User.Color,
		At:      msg.Time,
	}
	if m.User == "" {
		m.User = msg.User.Name
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	select {
	case t.out <- m:
	default:
	}
}

func normalize(channel string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#"))
}
