package transcript

import (
	"context"
	"sync"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

// MemoryStore keeps the most recent messages of the current process. The
// ops status endpoint reads from it.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	entries []Entry
}

// NewMemoryStore keeps at most limit entries; limit <= 0 means 200.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 200
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) StartRun(context.Context, dispatch.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

func (s *MemoryStore) RecordMessage(_ context.Context, rec dispatch.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entryFromRecord(rec))
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) FinishRun(context.Context, *dispatch.Outcome) error { return nil }

// Recent returns up to n of the latest entries, oldest first. n <= 0 returns all.
func (s *MemoryStore) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.entries) {
		start = len(s.entries) - n
	}
	return append([]Entry(nil), s.entries[start:]...)
}
