package handlers

import (
	"strings"
	"sync"
	"time"
)

// webhookThrottle applies a fixed-window request cap per store domain so one
// misbehaving storefront cannot starve the others of ingestion capacity.
type webhookThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]throttleEntry
}

type throttleEntry struct {
	count int
	reset time.Time
}

func newWebhookThrottle(perMinute int, clock func() time.Time) *webhookThrottle {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &webhookThrottle{
		limit:  perMinute,
		window: time.Minute,
		clock:  clock,
		store:  make(map[string]throttleEntry),
	}
}

func (t *webhookThrottle) Allow(storeDomain string) bool {
	if t == nil {
		return true
	}
	key := strings.ToLower(strings.TrimSpace(storeDomain))
	if key == "" {
		key = "unknown"
	}
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.store[key]
	if !ok || now.After(entry.reset) {
		t.store[key] = throttleEntry{count: 1, reset: now.Add(t.window)}
		t.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= t.limit {
		return false
	}
	entry.count++
	t.store[key] = entry
	return true
}

func (t *webhookThrottle) pruneExpiredLocked(now time.Time) {
	if len(t.store) == 0 {
		return
	}
	for key, entry := range t.store {
		if now.After(entry.reset) {
			delete(t.store, key)
		}
	}
}
