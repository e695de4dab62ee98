package presence

import (
	"context"
	"sync"
)

type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // userID -> connIDs
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]map[string]struct{})}
}

func (r *MemoryRegistry) Register(_ context.Context, userID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[userID]; !ok {
		r.conns[userID] = make(map[string]struct{})
	}
	r.conns[userID][connID] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, userID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.conns[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	return nil
}

func (r *MemoryRegistry) Connections(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.conns[userID]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0, nil
}
