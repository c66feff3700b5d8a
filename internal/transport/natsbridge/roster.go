package natsbridge

import (
	"sync"
	"time"
)

// roster is a thread-safe presence table: member id to last announce
// time. Members expire when their heartbeats stop.
type roster struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newRoster() *roster {
	return &roster{seen: make(map[string]time.Time)}
}

// mark records an announce and reports whether the member is new.
func (r *roster) mark(memberID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.seen[memberID]
	r.seen[memberID] = now
	return !known
}

// drop removes a member and reports whether it was present.
func (r *roster) drop(memberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[memberID]; !ok {
		return false
	}
	delete(r.seen, memberID)
	return true
}

// expire removes members whose last announce is older than ttl and
// reports whether anything changed.
func (r *roster) expire(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for id, last := range r.seen {
		if now.Sub(last) > ttl {
			delete(r.seen, id)
			changed = true
		}
	}
	return changed
}

func (r *roster) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.seen))
	for id := range r.seen {
		ids = append(ids, id)
	}
	return ids
}
