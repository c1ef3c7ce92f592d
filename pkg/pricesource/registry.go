package pricesource

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ogulcanaydogan/fare-guardian/pkg/fetch"
)

// Registry manages price sources by name.
type Registry struct {
	mu          sync.RWMutex
	sources     map[string]Source
	defaultName string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source. The first registered source becomes the default.
func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.sources[name] = s
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault selects the source used when an alert names none.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[name]; !ok {
		return fmt.Errorf("source %q not found", name)
	}
	r.defaultName = name
	return nil
}

// Get returns a source by name; an empty name resolves to the default.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("source %q not found", name)
	}
	return s, nil
}

// Default returns the default source name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// List returns all registered source names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wrap replaces every registered source with wrap(source), e.g. to add caching.
func (r *Registry) Wrap(wrap func(Source) Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.sources {
		r.sources[name] = wrap(s)
	}
}

// NewRegistryFromFile builds HTTP sources, each with its own throttled
// fetch client, from a sources file.
func NewRegistryFromFile(file *SourcesFile, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range file.Sources {
		client := fetch.NewClient(fetch.Options{
			Source:            cfg.Name,
			Window:            cfg.RateLimit.Window,
			RequestsPerWindow: cfg.RateLimit.Requests,
			MaxAttempts:       cfg.Retry.MaxAttempts,
			MaxBackoff:        cfg.Retry.MaxBackoff,
			Timeout:           cfg.Timeout,
		}, nil, logger)

		if err := r.Register(NewHTTPSource(cfg, client, logger)); err != nil {
			return nil, err
		}
	}
	if file.Default != "" {
		if err := r.SetDefault(file.Default); err != nil {
			return nil, err
		}
	}
	return r, nil
}
