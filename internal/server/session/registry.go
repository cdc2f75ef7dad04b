package session

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps identity to the active session. Every operation runs under
// one mutex, so admissions, evictions and snapshots are linearizable. The
// map itself never leaves the registry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Admit registers s under its identity. A session already registered for
// the same identity is replaced and returned.
func (r *Registry) Admit(s *Session) (replaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.sessions[s.Identity]
	r.sessions[s.Identity] = s
	return replaced
}

// Evict removes identity. It is a no-op when identity is absent.
func (r *Registry) Evict(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, identity)
}

// EvictSession removes s only if it is still the registered session for its
// identity, so a superseded connection cannot evict its replacement. It
// reports whether s was removed.
func (r *Registry) EvictSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.Identity]; ok && cur == s {
		delete(r.sessions, s.Identity)
		return true
	}
	return false
}

func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	return s, ok
}

// Snapshot copies the registered sessions, ordered by identity. Callers
// iterate the copy without holding the registry lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	out := lo.Values(r.sessions)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Identities returns the registered identities in Snapshot order.
func (r *Registry) Identities() []string {
	r.mu.Lock()
	ids := lo.Keys(r.sessions)
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
