package service

import (
	"context"
	"sync"
	"time"
)

// CodeStore holds short-lived secrets keyed by string. Expiry is owned by the store.
type CodeStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ForceSet(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}

type codeEntry struct {
	value     string
	expiresAt time.Time
}

type InMemoryCodeStore struct {
	mu   sync.Mutex
	data map[string]codeEntry
	now  func() time.Time
}

func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{data: make(map[string]codeEntry), now: time.Now}
}

func (s *InMemoryCodeStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.data[key] = codeEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *InMemoryCodeStore) ForceSet(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = codeEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryCodeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key)
	return entry.value, ok, nil
}

func (s *InMemoryCodeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *InMemoryCodeStore) DeleteIfEquals(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key)
	if !ok || entry.value != value {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *InMemoryCodeStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key)
	if !ok {
		return 0, false, nil
	}
	return entry.expiresAt.Sub(s.now()), true, nil
}

func (s *InMemoryCodeStore) liveLocked(key string) (codeEntry, bool) {
	entry, ok := s.data[key]
	if !ok {
		return codeEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.data, key)
		return codeEntry{}, false
	}
	return entry, true
}
