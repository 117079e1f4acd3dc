package remote

import (
	"context"
	"errors"
	"sync"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"
)

var _ domain.RemoteStore = (*MemoryStore)(nil)

// ErrUnavailable is returned by MemoryStore while it is marked offline.
var ErrUnavailable = errors.New("remote: store unavailable")

// MemoryStore is an in-process remote store for local runs and tests.
// Commits are atomic: a failing batch stores nothing.
type MemoryStore struct {
	mu      sync.Mutex
	records map[models.Kind]map[string][]byte
	offline bool

	// Hooks run before the corresponding call; a non-nil error fails it.
	BeforeCommit func(kind models.Kind, ops []models.Operation) error
	BeforeExists func(kind models.Kind, keys []string) error

	commitCalls [][]string
	existsCalls [][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[models.Kind]map[string][]byte)}
}

func (s *MemoryStore) ExistingKeys(_ context.Context, kind models.Kind, keys []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.existsCalls = append(s.existsCalls, append([]string(nil), keys...))
	if s.offline {
		return nil, ErrUnavailable
	}
	if s.BeforeExists != nil {
		if err := s.BeforeExists(kind, keys); err != nil {
			return nil, err
		}
	}

	var found []string
	for _, k := range keys {
		if _, ok := s.records[kind][k]; ok {
			found = append(found, k)
		}
	}
	return found, nil
}

func (s *MemoryStore) CommitBatch(_ context.Context, kind models.Kind, ops []models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitCalls = append(s.commitCalls, models.NaturalKeys(ops))
	if s.offline {
		return ErrUnavailable
	}
	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(kind, ops); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if _, ok := s.records[kind][op.NaturalKey]; ok {
			return ErrConflict
		}
		if _, ok := seen[op.NaturalKey]; ok {
			return ErrConflict
		}
		seen[op.NaturalKey] = struct{}{}
	}

	if s.records[kind] == nil {
		s.records[kind] = make(map[string][]byte)
	}
	for _, op := range ops {
		s.records[kind][op.NaturalKey] = append([]byte(nil), op.Payload...)
	}
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrUnavailable
	}
	return nil
}

// SetOffline makes every call fail with ErrUnavailable.
func (s *MemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// Count returns the number of records stored for kind.
func (s *MemoryStore) Count(kind models.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[kind])
}

// Has reports whether key is stored for kind.
func (s *MemoryStore) Has(kind models.Kind, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[kind][key]
	return ok
}

// CommitCalls returns the keys of every CommitBatch call, failed ones included.
func (s *MemoryStore) CommitCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.commitCalls))
	copy(out, s.commitCalls)
	return out
}

// ExistsCalls returns the keys of every ExistingKeys call.
func (s *MemoryStore) ExistsCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.existsCalls))
	copy(out, s.existsCalls)
	return out
}
