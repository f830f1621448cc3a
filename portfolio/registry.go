package portfolio

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/store"
)

// Registry maps session ids to live coordinators, so each session has
// exactly one in-process writer. Lookups that miss fall through to the
// store and restore on demand.
type Registry struct {
	mu    sync.RWMutex
	st    *store.Store
	log   *zap.Logger
	coord map[string]*Coordinator
}

// NewRegistry creates a registry backed by st.
func NewRegistry(st *store.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		st:    st,
		log:   log,
		coord: make(map[string]*Coordinator),
	}
}

// Create starts a new session and registers its coordinator.
func (r *Registry) Create(cfg *config.Session) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coord[cfg.SessionID]; ok {
		return nil, ErrDuplicateSession
	}
	c, err := New(cfg, r.st, r.log)
	if err != nil {
		return nil, err
	}
	r.coord[cfg.SessionID] = c
	return c, nil
}

// Get returns the coordinator for sessionID, restoring it from the store on
// first access. Concurrent callers for the same session get the same
// instance.
func (r *Registry) Get(sessionID string) (*Coordinator, error) {
	r.mu.RLock()
	c, ok := r.coord[sessionID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coord[sessionID]; ok {
		return c, nil
	}
	c, err := Restore(r.st, sessionID, r.log)
	if err != nil {
		return nil, err
	}
	r.coord[sessionID] = c
	return c, nil
}

// Sessions lists the ids of the sessions currently live in this process.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.coord))
	for id := range r.coord {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
