package connector

import (
	"fmt"
	"sort"
)

// Constructor creates a PostSource from its settings.
type Constructor func(cfg Config) (PostSource, error)

var registry = map[string]Constructor{}

// Register adds a source constructor under the given provider name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the source constructor for the given provider name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown post store provider: %s", name)
	}
	return ctor, nil
}

// Open builds the source named by cfg.Provider.
func Open(cfg Config) (PostSource, error) {
	ctor, err := Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return ctor(cfg)
}

// Providers returns the names of all registered providers, sorted.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
