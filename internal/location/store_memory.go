package location

import (
	"context"
	"fmt"
	"sync"

	"callfence/pkg/platform/sentinel"
)

// InMemoryStore keeps per-user records under per-user locks. The outer map
// lock is only held long enough to fetch or create a user's slot, so one
// user's update never serializes against another's.
type InMemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

type slot struct {
	mu     sync.Mutex
	record Record
	set    bool
}

// NewInMemoryStore constructs an empty in-memory location store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{slots: make(map[string]*slot)}
}

func (s *InMemoryStore) slotFor(userID string, create bool) *slot {
	s.mu.RLock()
	sl, ok := s.slots[userID]
	s.mu.RUnlock()
	if ok || !create {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[userID]; ok {
		return sl
	}
	sl = &slot{}
	s.slots[userID] = sl
	return sl
}

func (s *InMemoryStore) Upsert(_ context.Context, record *Record) error {
	sl := s.slotFor(record.UserID, true)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.set {
		record.FirstSeen = sl.record.FirstSeen
		if record.Email == "" {
			record.Email = sl.record.Email
		}
	} else {
		record.FirstSeen = record.RecordedAt
	}
	sl.record = *record
	sl.set = true
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, userID string) (*Record, error) {
	sl := s.slotFor(userID, false)
	if sl == nil {
		return nil, fmt.Errorf("location record for %s: %w", userID, sentinel.ErrNotFound)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.set {
		return nil, fmt.Errorf("location record for %s: %w", userID, sentinel.ErrNotFound)
	}
	record := sl.record
	return &record, nil
}
