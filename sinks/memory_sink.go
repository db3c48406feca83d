package sinks

import (
	"context"
	"sync"
)

type MemorySink struct {
	mu       sync.RWMutex
	entities map[string]map[string]Entity
}

func NewMemorySink() *MemorySink {
	return &MemorySink{entities: make(map[string]map[string]Entity)}
}

func (s *MemorySink) Put(_ context.Context, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.entities[entity.Type]
	if !ok {
		byID = make(map[string]Entity)
		s.entities[entity.Type] = byID
	}
	byID[entity.ID] = entity
	return nil
}

func (s *MemorySink) Get(_ context.Context, entityType, id string) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[entityType][id]
	return entity, ok, nil
}

func (s *MemorySink) Delete(_ context.Context, entityType, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityType][id]; !ok {
		return false, nil
	}
	delete(s.entities[entityType], id)
	return true, nil
}

// Len returns the number of stored entities of entityType.
func (s *MemorySink) Len(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities[entityType])
}

func (s *MemorySink) Close() error {
	return nil
}
