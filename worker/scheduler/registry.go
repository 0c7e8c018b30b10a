package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Handle is the registry's view of a running execution unit.
type Handle struct {
	JobID     string
	UserID    int64
	StartedAt time.Time

	token *Token
	done  chan struct{}
}

// Done is closed once the unit has cleaned up and left the registry.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Registry maps job ids to their running units. All access goes through one mutex.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

func (r *Registry) add(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[h.JobID]; ok {
		return ErrAlreadyActive
	}
	r.handles[h.JobID] = h
	return nil
}

func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[id]; !ok {
		return false
	}
	delete(r.handles, id)
	return true
}

func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// IDs returns the active job ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}
