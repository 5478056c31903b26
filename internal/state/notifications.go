// Package state holds the in-memory collections the dashboard views
// render from. Each container is safe for concurrent use: the live
// channel's read goroutine merges pushed events into the same state the
// snapshot fetch populated, and the two are not ordered relative to
// each other.
package state

import (
	"sync"

	"github.com/danti/wastewatch/internal/model"
)

// Notifications is the per-user notification feed, newest first.
//
// The unread count is always computed from the collection — it is never
// tracked as separate mutable state, so it cannot drift no matter what
// order loads, pushes, and mark-read actions arrive in.
type Notifications struct {
	mu   sync.RWMutex
	list []model.Notification
}

// NewNotifications returns an empty feed.
func NewNotifications() *Notifications {
	return &Notifications{}
}

// SetAll replaces the feed with a snapshot from the server.
func (n *Notifications) SetAll(list []model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append([]model.Notification(nil), list...)
}

// Prepend adds a pushed notification at the front. No de-duplication by
// id: redelivery of the same event produces a duplicate entry, matching
// the at-least-once channel semantics.
func (n *Notifications) Prepend(notif model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append([]model.Notification{notif}, n.list...)
}

// MarkRead flags the notification with the given id as read. Reports
// whether an entry changed.
func (n *Notifications) MarkRead(id int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	changed := false
	for i := range n.list {
		if n.list[i].ID == id && !n.list[i].IsRead {
			n.list[i].IsRead = true
			changed = true
		}
	}
	return changed
}

// MarkAllRead flags every notification as read.
func (n *Notifications) MarkAllRead() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.list {
		n.list[i].IsRead = true
	}
}

// All returns a copy of the feed in display order.
func (n *Notifications) All() []model.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]model.Notification(nil), n.list...)
}

// UnreadCount is the number of unread entries, computed on every call.
func (n *Notifications) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, notif := range n.list {
		if !notif.IsRead {
			count++
		}
	}
	return count
}

// Clear empties the feed. Wired to the session reset hook so nothing
// survives a logout.
func (n *Notifications) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = nil
}
