// Package credentials implements the relay's credential gate and the
// stores it looks verifiers up in.
package credentials

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// Store maps an identity to its stored verifier.
type Store interface {
	// Verifier returns common.ErrNotFound when the identity is unknown.
	Verifier(ctx context.Context, identity string) ([]byte, error)
	// AddUser creates or replaces the verifier for identity.
	AddUser(ctx context.Context, identity string, verifier []byte) error
}

// MemoryStore keeps verifiers in a map; used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	verifiers map[string][]byte
}

// NewMemoryStore seeds a store from identity → verifier pairs.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	s := &MemoryStore{verifiers: make(map[string][]byte, len(seed))}
	for id, v := range seed {
		s.verifiers[id] = []byte(v)
	}
	return s
}

func (s *MemoryStore) Verifier(_ context.Context, identity string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verifiers[identity]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) AddUser(_ context.Context, identity string, verifier []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.verifiers[identity] = append([]byte(nil), verifier...)
	return nil
}
