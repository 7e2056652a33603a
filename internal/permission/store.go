package permission

import (
	"context"
	"sync"
)

// Store persists permission entries. Entries only returns stored rows;
// completion with deny-all happens in the Service.
type Store interface {
	Entries(ctx context.Context, role string) (map[string]Entry, error)
	AllEntries(ctx context.Context) (map[string]map[string]Entry, error)
	// ReplaceRole upserts one row per module of cfg for role.
	ReplaceRole(ctx context.Context, role string, cfg ModuleConfig) error
	// ReplaceAll truncates every entry and stores cfg.
	ReplaceAll(ctx context.Context, cfg map[string]ModuleConfig) error
}

// InMemory is a Store backed by a map, seeded with Defaults.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	s := &InMemory{entries: make(map[string]map[string]Entry)}
	for role, cfg := range Defaults() {
		s.entries[role] = copyConfig(cfg)
	}
	return s
}

func (s *InMemory) Entries(ctx context.Context, role string) (map[string]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyConfig(s.entries[role]), nil
}

func (s *InMemory) AllEntries(ctx context.Context) (map[string]map[string]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]Entry, len(s.entries))
	for role, cfg := range s.entries {
		out[role] = copyConfig(cfg)
	}
	return out, nil
}

func (s *InMemory) ReplaceRole(ctx context.Context, role string, cfg ModuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.entries[role]
	if cur == nil {
		cur = make(map[string]Entry, len(cfg))
	}
	for m, e := range cfg {
		cur[m] = e.normalize()
	}
	s.entries[role] = cur
	return nil
}

func (s *InMemory) ReplaceAll(ctx context.Context, cfg map[string]ModuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[string]Entry, len(cfg))
	for role, c := range cfg {
		s.entries[role] = copyConfig(c)
	}
	return nil
}

func copyConfig[M ~map[string]Entry](in M) map[string]Entry {
	out := make(map[string]Entry, len(in))
	for m, e := range in {
		out[m] = e.normalize()
	}
	return out
}
