package fetch

import "sync"

// Factory builds a fetcher on first use. Returning a nil fetcher or an
// error marks the backend unavailable.
type Factory func() (Fetcher, error)

type registration struct {
	available func() bool
	build     Factory
}

// Registry hands out fetchers by name. Backends are registered with an
// availability predicate, built lazily on first Get and cached for the
// life of the registry.
type Registry struct {
	mu    sync.Mutex
	regs  map[string]registration
	order []string
	cache map[string]Fetcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		regs:  make(map[string]registration),
		cache: make(map[string]Fetcher),
	}
}

// NewDefaultRegistry registers the built-in backends: http and
// collector always, browser when enabled.
func NewDefaultRegistry(userAgent, browserURL string, browserEnabled bool) *Registry {
	r := NewRegistry()
	r.Register(MethodHTTP, nil, func() (Fetcher, error) {
		return NewHTTPFetcher(userAgent), nil
	})
	r.Register(MethodCollector, nil, func() (Fetcher, error) {
		return NewCollyFetcher(userAgent), nil
	})
	r.Register(MethodBrowser, func() bool { return browserEnabled }, func() (Fetcher, error) {
		return NewRodFetcher(browserURL), nil
	})
	return r
}

// Register adds a named backend. A nil available predicate means the
// backend is always available.
func (r *Registry) Register(name string, available func() bool, build Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.regs[name] = registration{available: available, build: build}
	delete(r.cache, name)
}

// Available reports whether the named backend is registered and its
// availability predicate passes.
func (r *Registry) Available(name string) bool {
	r.mu.Lock()
	reg, ok := r.regs[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return reg.available == nil || reg.available()
}

// Get returns the fetcher registered under name, building and caching
// it on first use. Unavailable or failed backends return false.
func (r *Registry) Get(name string) (Fetcher, bool) {
	if !r.Available(name) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.cache[name]; ok {
		return f, true
	}
	reg, ok := r.regs[name]
	if !ok {
		return nil, false
	}
	f, err := reg.build()
	if err != nil || f == nil {
		return nil, false
	}
	r.cache[name] = f
	return f, true
}

// Names returns the registered backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FirstScreenshotter walks order and returns the first available
// fetcher that can capture screenshots.
func (r *Registry) FirstScreenshotter(order []string) (Screenshotter, bool) {
	for _, name := range order {
		f, ok := r.Get(name)
		if !ok {
			continue
		}
		if s, ok := f.(Screenshotter); ok {
			return s, true
		}
	}
	return nil, false
}
