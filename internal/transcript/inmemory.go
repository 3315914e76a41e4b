package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPerSessionLimit bounds the in-memory sink per session.
const DefaultPerSessionLimit = 200

// InMemorySink keeps the newest records of each session in process.
type InMemorySink struct {
	mu      sync.RWMutex
	limit   int
	records map[string][]Record
}

func NewInMemorySink(perSession int) *InMemorySink {
	if perSession <= 0 {
		perSession = DefaultPerSessionLimit
	}
	return &InMemorySink{limit: perSession, records: make(map[string][]Record)}
}

func (s *InMemorySink) Save(_ context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.records[record.SessionID], record)
	if over := len(arr) - s.limit; over > 0 {
		arr = append([]Record(nil), arr[over:]...)
	}
	s.records[record.SessionID] = arr
	return nil
}

func (s *InMemorySink) Recent(_ context.Context, sessionID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Record, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemorySink) Close() error { return nil }
