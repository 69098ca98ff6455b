package discovery

import "sync"

// Registry manages named citation sources. It provides thread-safe
// registration and retrieval so the worker can be wired with whichever
// sources the configuration enables.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]CitationSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]CitationSource),
	}
}

// Register adds a source to the registry.
// If a source with the same name already exists, it will be replaced.
// This method is thread-safe.
func (r *Registry) Register(source CitationSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Get returns a source by name, or nil if not found.
// This method is thread-safe.
func (r *Registry) Get(name string) CitationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// AllSources returns all registered sources.
// The returned slice is a snapshot and is safe to iterate even if sources
// are added or removed concurrently.
// This method is thread-safe.
func (r *Registry) AllSources() []CitationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]CitationSource, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	return sources
}

// EnabledSources returns only enabled sources.
// Sources are considered enabled if their IsEnabled() method returns true.
// This method is thread-safe.
func (r *Registry) EnabledSources() []CitationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]CitationSource, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}
