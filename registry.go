package tryvial

import (
	"sort"
	"sync"
)

// Registry holds named [Config] values, typically loaded with [LoadConfig].
// It stores configuration only: policies built from it share no execution
// state.
type Registry struct {
	configs map[string]Config
	mu      sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]Config)}
}

// Set stores cfg under name, replacing any previous entry. The config is
// validated first.
func (r *Registry) Set(name string, cfg Config) error {
	if _, err := BuildOptions(&cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configs == nil {
		r.configs = make(map[string]Config)
	}

	r.configs[name] = cfg

	return nil
}

// Config returns the config stored under name.
func (r *Registry) Config(name string) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[name]

	return cfg, ok
}

// Names returns the stored policy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// GetPolicy builds a typed [Policy] from the config stored under name. If the
// name is unknown a bare policy is created with only opts.
//
// opts are applied after the config options, so they take precedence; this is
// where hooks and fallbacks, which cannot be expressed in JSON, are added.
func GetPolicy[T any](reg *Registry, name string, opts ...any) *Policy[T] {
	var allOpts []any

	if cfg, ok := reg.Config(name); ok {
		if configOpts, err := BuildOptions(&cfg); err == nil {
			allOpts = append(allOpts, configOpts...)
		}
	}

	allOpts = append(allOpts, opts...)

	return NewPolicy[T](name, allOpts...)
}
