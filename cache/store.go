package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/jonwraymond/tokencache/oracle"
)

// entry is one cached verification result.
type entry struct {
	claims *oracle.Claims

	// expiresAt is the claims expiry minus the expiry buffer.
	expiresAt time.Time

	// size is the approximate footprint charged against MaxBytes.
	size int64
}

// expired reports whether now is past the entry's effective expiry.
func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// store is an LRU map from raw token to entry, bounded by count and by
// total size. It is not safe for concurrent use; TokenCache serializes
// access with its own mutex.
type store struct {
	lru      *simplelru.LRU[string, *entry]
	maxBytes int64
	bytes    int64
}

func newStore(maxEntries int, maxBytes int64) (*store, error) {
	s := &store{maxBytes: maxBytes}
	lru, err := simplelru.NewLRU[string, *entry](maxEntries, s.onEvict)
	if err != nil {
		return nil, err
	}
	s.lru = lru
	return s, nil
}

// onEvict runs for every entry leaving the LRU, whatever the reason.
func (s *store) onEvict(_ string, e *entry) {
	s.bytes -= e.size
}

// get returns the entry for token and marks it most recently used.
func (s *store) get(token string) (*entry, bool) {
	return s.lru.Get(token)
}

// add inserts or replaces the entry for token and returns how many other
// entries were evicted to make room. An entry larger than maxBytes on its
// own is still admitted once everything else has been evicted.
func (s *store) add(token string, e *entry) int {
	s.lru.Remove(token)

	evicted := 0
	for s.lru.Len() > 0 && s.bytes+e.size > s.maxBytes {
		s.lru.RemoveOldest()
		evicted++
	}

	if s.lru.Add(token, e) {
		evicted++
	}
	s.bytes += e.size
	return evicted
}

// remove deletes token's entry if present.
func (s *store) remove(token string) bool {
	return s.lru.Remove(token)
}

// removeFunc deletes every entry for which match returns true, without
// touching the recency of the survivors.
func (s *store) removeFunc(match func(e *entry) bool) int {
	removed := 0
	for _, token := range s.lru.Keys() {
		e, ok := s.lru.Peek(token)
		if ok && match(e) {
			s.lru.Remove(token)
			removed++
		}
	}
	return removed
}

func (s *store) len() int {
	return s.lru.Len()
}

func (s *store) size() int64 {
	return s.bytes
}

func (s *store) purge() {
	s.lru.Purge()
}
