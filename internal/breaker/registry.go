package breaker

import "sync"

// Registry hands out named breakers. The first caller to name a breaker
// fixes its settings; later GetOrCreate calls with different settings
// return the existing breaker unchanged.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the breaker registered under name, creating it
// with the given settings if absent.
func (r *Registry) GetOrCreate(name string, s Settings) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, s)
	r.breakers[name] = b
	return b
}

// Get returns the breaker registered under name, if any.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// All returns a snapshot of the registered breakers keyed by name.
func (r *Registry) All() map[string]*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b
	}
	return out
}

// ResetAll resets every registered breaker to closed.
func (r *Registry) ResetAll() {
	for _, b := range r.All() {
		b.Reset()
	}
}

// defaultRegistry is the process-wide registry used by the package-level
// helpers. Tests tear it down with Reset.
var defaultRegistry = NewRegistry()

// Get returns a breaker from the process-wide registry, creating it on
// first use.
func Get(name string, s Settings) *Breaker {
	return defaultRegistry.GetOrCreate(name, s)
}

// Lookup returns a breaker from the process-wide registry without
// creating it.
func Lookup(name string) (*Breaker, bool) {
	return defaultRegistry.Get(name)
}

// Reset replaces the process-wide registry with an empty one.
func Reset() {
	defaultRegistry = NewRegistry()
}
