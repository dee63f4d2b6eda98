package intent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrServerNotRegistered = errors.New("intent server not registered")
	ErrNotCollaborator     = errors.New("intent is not a declared collaborator")
)

// Registry maps intent names to their servers. Populate it before serving.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*Server)}
}

// Register binds name to server and lets the server reach its collaborators
// through this registry.
func (r *Registry) Register(name string, server *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	server.registry = r
	r.servers[name] = server
}

// Server returns the server registered for name, or ErrServerNotRegistered.
func (r *Registry) Server(name string) (*Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotRegistered, name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears every server's gathered slots.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		s.Reset()
	}
}
