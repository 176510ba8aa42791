package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
)

type memEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps the most recent jobs of a single proxy process. Old
// jobs are evicted by count and by ttl.
type MemoryStore struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memEntry]
	ttl time.Duration
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemory(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, memEntry](size)
	return &MemoryStore{lru: c, ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, r Record) error {
	start := time.Now()
	s.mu.Lock()
	e := memEntry{rec: r}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.lru.Add(r.Ref, e)
	s.mu.Unlock()
	observability.ObserveJobStoreOp("memory", "put", nil, time.Since(start).Seconds())
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, r Record) (bool, error) {
	start := time.Now()
	defer func() { observability.ObserveJobStoreOp("memory", "transition", nil, time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lru.Get(r.Ref); ok && e.rec.Terminal() && (e.expires.IsZero() || s.now().Before(e.expires)) {
		return false, nil
	}
	e := memEntry{rec: r}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.lru.Add(r.Ref, e)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, ref string) (Record, error) {
	start := time.Now()
	defer func() { observability.ObserveJobStoreOp("memory", "get", nil, time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lru.Get(ref)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.lru.Remove(ref)
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return e.rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	s.lru.Remove(ref)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.lru.Purge()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int { return s.lru.Len() }
