package ui

import "time"

// Notice is a notification shown in the status bar.
type Notice struct {
	Title string
	Body  string
	At    time.Time
}

// Notices delivers controller notifications to the TUI. Notify never blocks;
// when the UI is not reading, old notices are dropped.
type Notices struct {
	ch chan Notice
}

func NewNotices(buffer int) *Notices {
	return &Notices{ch: make(chan Notice, buffer)}
}

func (n *Notices) Notify(title, body string) {
	select {
	case n.ch <- Notice{Title: title, Body: body, At: time.Now()}:
	default:
	}
}

func (n *Notices) C() <-chan Notice { return n.ch }
