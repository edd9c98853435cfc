// Package idempotency remembers admission results by client-supplied key so
// a retried submission returns the first result instead of admitting again.
//
// A key is reserved before the ledger write. If the write fails definitively
// the reservation is released; if its outcome is unknown the reservation is
// kept until it expires, so a blind retry is refused rather than admitted twice.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shikkha/pkg/platform/sentinel"
)

// State of a key after Reserve.
type State int

const (
	// Reserved means the caller now owns the key and must Complete or Release it.
	Reserved State = iota
	// InFlight means another submission holds the key.
	InFlight
	// Completed means a result is stored for the key.
	Completed
)

// Store is implemented by the memory and Redis stores.
type Store interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (State, []byte, error)
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("idempotency key is empty: %w", sentinel.ErrInvalidState)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

type entry struct {
	result    []byte
	done      bool
	expiresAt time.Time
}

// InMemory is a process-local Store.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

func NewInMemory(clock func() time.Time) *InMemory {
	if clock == nil {
		clock = time.Now
	}
	return &InMemory{entries: make(map[string]entry), clock: clock}
}

func (s *InMemory) Reserve(_ context.Context, key string, ttl time.Duration) (State, []byte, error) {
	if err := validate(key, ttl); err != nil {
		return 0, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if e.done {
			return Completed, append([]byte(nil), e.result...), nil
		}
		return InFlight, nil, nil
	}
	s.entries[key] = entry{expiresAt: now.Add(ttl)}
	return Reserved, nil, nil
}

func (s *InMemory) Complete(_ context.Context, key string, result []byte, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		result:    append([]byte(nil), result...),
		done:      true,
		expiresAt: s.clock().Add(ttl),
	}
	return nil
}

func (s *InMemory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.done {
		delete(s.entries, key)
	}
	return nil
}
