package collab

import (
	"sort"
	"time"
)

// PresenceTracker keeps one heartbeat timestamp per open connection. It is
// owned by a single hub and only touched from the hub's mailbox loop, so it
// needs no locking.
type PresenceTracker struct {
	lastSeen map[string]time.Time
}

// NewPresenceTracker constructs an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{lastSeen: make(map[string]time.Time)}
}

// Track registers a connection with an initial heartbeat.
func (p *PresenceTracker) Track(connID string, now time.Time) {
	p.lastSeen[connID] = now
}

// Touch refreshes the heartbeat for a connection. Unknown IDs are ignored;
// the connection may already have been swept.
func (p *PresenceTracker) Touch(connID string, now time.Time) {
	if _, ok := p.lastSeen[connID]; ok {
		p.lastSeen[connID] = now
	}
}

// Forget drops a connection from the tracker.
func (p *PresenceTracker) Forget(connID string) {
	delete(p.lastSeen, connID)
}

// Sweep returns the connections silent for longer than timeout and removes
// them from the tracker. The result is sorted for deterministic eviction
// order.
func (p *PresenceTracker) Sweep(now time.Time, timeout time.Duration) []string {
	if timeout <= 0 {
		return nil
	}

	var expired []string
	for connID, seen := range p.lastSeen {
		if now.Sub(seen) > timeout {
			expired = append(expired, connID)
		}
	}
	for _, connID := range expired {
		delete(p.lastSeen, connID)
	}
	sort.Strings(expired)
	return expired
}

// Len reports the number of tracked connections.
func (p *PresenceTracker) Len() int {
	return len(p.lastSeen)
}
