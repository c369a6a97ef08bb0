package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. It does not survive restarts.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil {
		return Record{}, ErrNotFound
	}
	return Record{Pair: s.rec.Pair, Profile: cloneBytes(s.rec.Profile)}, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(rec); err != nil {
		return err
	}

	s.mu.Lock()
	s.rec = &Record{Pair: rec.Pair, Profile: cloneBytes(rec.Profile)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	return nil
}
