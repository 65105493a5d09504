package history

import (
	"context"
	"sync"

	"github.com/signalnews/pulse-gateway/internal/domain"
)

// MemoryStore keeps history in process memory. It backs guest sessions
// locally when Redis is not configured, and doubles as the store for
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]domain.HistoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]domain.HistoryRecord)}
}

func (s *MemoryStore) Save(_ context.Context, owner string, record domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[owner] = append([]domain.HistoryRecord{record}, s.records[owner]...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HistoryRecord(nil), s.records[owner]...), nil
}

func (s *MemoryStore) Delete(_ context.Context, owner string, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[owner]
	kept := make([]domain.HistoryRecord, 0, len(records))
	for _, record := range records {
		if record.JobID != jobID {
			kept = append(kept, record)
		}
	}
	s.records[owner] = kept
	return nil
}
