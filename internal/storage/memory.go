package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"nodenet/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	nodenets    map[string]model.NodenetRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.nodenets = make(map[string]model.NodenetRecord)
	return nil
}

func (s *MemoryStore) SaveNodenet(_ context.Context, record model.NodenetRecord) error {
	if record.UID == "" {
		return ErrInvalidRecord
	}
	copied, err := cloneRecord(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.nodenets[record.UID] = copied
	return nil
}

func (s *MemoryStore) GetNodenet(_ context.Context, uid string) (model.NodenetRecord, bool, error) {
	s.mu.RLock()
	record, ok := s.nodenets[uid]
	initialized := s.initialized
	s.mu.RUnlock()

	if !initialized {
		return model.NodenetRecord{}, false, errNotInitialized
	}
	if !ok {
		return model.NodenetRecord{}, false, nil
	}
	copied, err := cloneRecord(record)
	if err != nil {
		return model.NodenetRecord{}, false, err
	}
	return copied, true, nil
}

func (s *MemoryStore) ListNodenets(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]Summary, 0, len(s.nodenets))
	for _, record := range s.nodenets {
		out = append(out, summarize(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *MemoryStore) DeleteNodenet(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	delete(s.nodenets, uid)
	return nil
}
