package ui

import (
	"sync"
	"time"

	"github.com/curatorhq/curator/internal/monitor"
)

const noticeCapacity = 100

// Notice is one user-facing message posted by the operation monitor.
type Notice struct {
	Severity monitor.Severity
	Text     string
	At       time.Time
}

// Notices is a bounded in-memory feed of notifications. It implements
// monitor.Notifier and is safe for concurrent use.
type Notices struct {
	mu      sync.Mutex
	entries []Notice
	unseen  int
}

// NewNotices creates an empty notice feed.
func NewNotices() *Notices {
	return &Notices{}
}

// Notify implements monitor.Notifier.
func (n *Notices) Notify(severity monitor.Severity, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, Notice{Severity: severity, Text: text, At: time.Now()})
	if len(n.entries) > noticeCapacity {
		n.entries = n.entries[len(n.entries)-noticeCapacity:]
	}
	n.unseen++
}

// Recent returns the stored notices, newest last.
func (n *Notices) Recent() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.entries))
	copy(out, n.entries)
	return out
}

// Unseen returns how many notices arrived since the last MarkSeen.
func (n *Notices) Unseen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unseen
}

// MarkSeen resets the unseen counter.
func (n *Notices) MarkSeen() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unseen = 0
}

// Latest returns the most recent notice, if any.
func (n *Notices) Latest() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.entries) == 0 {
		return Notice{}, false
	}
	return n.entries[len(n.entries)-1], true
}
