package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
)

type InMemoryState struct {
	value      string
	expiration time.Time
}

func (s *InMemoryState) expired(now time.Time) bool {
	return !s.expiration.IsZero() && !s.expiration.After(now)
}

type InMemoryStateStore struct {
	states map[string]*InMemoryState
	mu     sync.RWMutex
	done   chan struct{}
	once   sync.Once
}

func NewInMemoryStateStore(config config.InMemoryStateStoreConfig) *InMemoryStateStore {
	if config.SweepInterval == 0 {
		config.SweepInterval = time.Minute
	}
	s := &InMemoryStateStore{
		states: make(map[string]*InMemoryState),
		done:   make(chan struct{}),
	}
	go s.expire(config.SweepInterval)
	return s
}

func (s *InMemoryStateStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[key]
	if !ok || state.expired(time.Now()) {
		return "", false, nil
	}
	return state.value, true, nil
}

func (s *InMemoryStateStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *InMemoryStateStore) set(key, value string, ttl time.Duration) {
	state := &InMemoryState{value: value}
	if ttl > 0 {
		state.expiration = time.Now().Add(ttl)
	}
	s.states[key] = state
}

func (s *InMemoryStateStore) CompareAndSwap(_ context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if ok && state.expired(time.Now()) {
		ok = false
	}
	if old == "" && ok {
		return false, nil
	}
	if old != "" && (!ok || state.value != old) {
		return false, nil
	}
	s.set(key, new, ttl)
	return true, nil
}

func (s *InMemoryStateStore) CompareAndDelete(_ context.Context, key, old string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok || state.expired(time.Now()) || state.value != old {
		return false, nil
	}
	delete(s.states, key)
	return true, nil
}

func (s *InMemoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

func (s *InMemoryStateStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *InMemoryStateStore) expire(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, state := range s.states {
				if state.expired(now) {
					delete(s.states, key)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
