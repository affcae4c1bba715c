package memory

import (
	"sync"

	"github.com/smcp-go/smcp/session"
)

// New implements an ephemeral in-memory store. Sessions are lost when the
// process exits.
func New() *memoryStore {
	return &memoryStore{
		records: map[string]session.Record{},
	}
}

// Assert Store implementation
var _ session.Store = &memoryStore{}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]session.Record
}

func (s *memoryStore) Get(id string) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &rec, nil
}

func (s *memoryStore) Set(rec session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *memoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memoryStore) List() ([]session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]session.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	return records, nil
}

func (s *memoryStore) Close() error {
	return nil
}
