package profile

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the registered device profiles. Exactly one profile is
// served per process, but registration is process-wide so tests can stand
// up several instances side by side without cross-contamination.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		profiles: make(map[string]Profile),
		logger:   logger,
	}
}

// Register adds a profile. Duplicate names are a wiring bug and fail fast.
func (r *Registry) Register(p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.profiles[name]; exists {
		return fmt.Errorf("profile %q already registered", name)
	}
	r.profiles[name] = p
	r.logger.Info("profile registered", zap.String("name", name))
	return nil
}

// Get returns a profile by name.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns the registered profile names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
