// Package dedup prevents the same accepted solution from being committed
// twice when multiple observation channels fire for one acceptance.
package dedup

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gitgrind/gitgrind/pkg/record"
)

// DefaultTTL is the window within which an identical submission is treated as
// the same logical event.
const DefaultTTL = 10 * time.Minute

// Fingerprint derives the dedup key for a record: slug plus a rolling hash of
// the code. The hash is a simple multiply-add, not collision-resistant; the
// store only needs loose, short-window dedup.
func Fingerprint(r *record.SubmissionRecord) string {
	return r.Slug + "-" + strconv.FormatUint(uint64(rollingHash(r.Code)), 16)
}

func rollingHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// Store is an in-memory set of recently pushed fingerprints with TTL
// eviction. It is volatile on purpose: a restart legitimately allows a
// resubmission to be pushed again.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewStore creates a fingerprint store with the given TTL. A non-positive TTL
// falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsRecent reports whether the record's fingerprint was marked within the TTL
// window.
func (s *Store) IsRecent(r *record.SubmissionRecord) bool {
	fp := Fingerprint(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	marked, ok := s.entries[fp]
	if !ok {
		return false
	}
	if s.now().Sub(marked) > s.ttl {
		delete(s.entries, fp)
		return false
	}
	return true
}

// MarkRecent inserts the record's fingerprint. Expired entries are swept
// opportunistically on each insert, keeping the set bounded without a timer
// per entry.
func (s *Store) MarkRecent(r *record.SubmissionRecord) {
	fp := Fingerprint(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, marked := range s.entries {
		if now.Sub(marked) > s.ttl {
			delete(s.entries, key)
		}
	}
	s.entries[fp] = now
}

// Len returns the number of live fingerprints, for diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// String implements fmt.Stringer for log output.
func (s *Store) String() string {
	return fmt.Sprintf("dedup.Store(ttl=%s, entries=%d)", s.ttl, s.Len())
}
