// Package presence tracks the live online-user set from relay notifications.
package presence

import "sync"

// Tracker owns the process-wide presence set. Only the tracker mutates it;
// everything else reads through Online and Snapshot. All mutations are
// idempotent: repeated notifications for the same user are no-ops.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// Seed replaces the set with a directory snapshot at session start.
func (t *Tracker) Seed(usernames []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]struct{}, len(usernames))
	for _, name := range usernames {
		t.online[name] = struct{}{}
	}
}

// SetOnline records a user_online notification.
func (t *Tracker) SetOnline(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[username] = struct{}{}
}

// SetOffline records a user_offline notification.
func (t *Tracker) SetOffline(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, username)
}

// Online reports whether username is currently online.
func (t *Tracker) Online(username string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[username]
	return ok
}

// Snapshot returns the current online usernames.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for name := range t.online {
		out = append(out, name)
	}
	return out
}
