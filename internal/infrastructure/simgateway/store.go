package simgateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// Progress is what the simulated backend knows about one deployed
// component.
type Progress struct {
	ProviderKind domain.ProviderKind
	Deployed     domain.Values
	StatusChecks int
}

// ProgressStore holds simulated backend state keyed by component
// identity. Get returns an error wrapping [domain.ErrNotFound] for
// identities that were never deployed.
type ProgressStore interface {
	Get(ctx context.Context, id domain.ComponentIdentity) (Progress, error)
	Put(ctx context.Context, id domain.ComponentIdentity, p Progress) error
}

// MemoryStore is an in-memory [ProgressStore]. Each instance is
// independent, so concurrent tests do not share backend state.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[domain.ComponentIdentity]Progress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{progress: make(map[domain.ComponentIdentity]Progress)}
}

func (s *MemoryStore) Get(_ context.Context, id domain.ComponentIdentity) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[id]
	if !ok {
		return Progress{}, fmt.Errorf("component %q: %w", id, domain.ErrNotFound)
	}
	p.Deployed = p.Deployed.Clone()
	return p, nil
}

func (s *MemoryStore) Put(_ context.Context, id domain.ComponentIdentity, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Deployed = p.Deployed.Clone()
	s.progress[id] = p
	return nil
}
