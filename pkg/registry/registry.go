// Package registry maps plugin type names to plugin factories. Plugin
// packages register themselves from init; the CLI blank-imports them.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/logger"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// Kind distinguishes input plugins from parser plugins.
type Kind string

const (
	KindInput  Kind = "input"
	KindParser Kind = "parser"
)

// InputFactory creates input plugin instances.
type InputFactory func() (spi.InputPlugin, error)

// ParserFactory creates parser plugin instances.
type ParserFactory func() (spi.ParserPlugin, error)

// PluginInfo describes a registered plugin for listings.
type PluginInfo struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Registry manages plugin registration and instantiation
type Registry struct {
	inputs  map[string]InputFactory
	parsers map[string]ParserFactory
	infos   map[string]PluginInfo
	mu      sync.RWMutex
}

var _ spi.Plugins = (*Registry)(nil)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new plugin registry
func NewRegistry() *Registry {
	return &Registry{
		inputs:  make(map[string]InputFactory),
		parsers: make(map[string]ParserFactory),
		infos:   make(map[string]PluginInfo),
	}
}

// RegisterInput registers an input plugin factory
func (r *Registry) RegisterInput(name, description string, factory InputFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inputs[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("input plugin %s already registered", name))
	}

	r.inputs[name] = factory
	r.infos[infoKey(KindInput, name)] = PluginInfo{Name: name, Kind: KindInput, Description: description}
	r.log().Debug("input plugin registered", zap.String("name", name))
	return nil
}

// RegisterParser registers a parser plugin factory
func (r *Registry) RegisterParser(name, description string, factory ParserFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("parser plugin %s already registered", name))
	}

	r.parsers[name] = factory
	r.infos[infoKey(KindParser, name)] = PluginInfo{Name: name, Kind: KindParser, Description: description}
	r.log().Debug("parser plugin registered", zap.String("name", name))
	return nil
}

// Input creates an input plugin instance
func (r *Registry) Input(name string) (spi.InputPlugin, error) {
	r.mu.RLock()
	factory, exists := r.inputs[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("input plugin %s not found", name)).
			WithDetail("available", r.ListInputs())
	}

	plugin, err := factory()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create input plugin %s", name))
	}
	return plugin, nil
}

// Parser creates a parser plugin instance
func (r *Registry) Parser(name string) (spi.ParserPlugin, error) {
	r.mu.RLock()
	factory, exists := r.parsers[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("parser plugin %s not found", name)).
			WithDetail("available", r.ListParsers())
	}

	plugin, err := factory()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create parser plugin %s", name))
	}
	return plugin, nil
}

// ListInputs returns the sorted names of registered input plugins
func (r *Registry) ListInputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.inputs)
}

// ListParsers returns the sorted names of registered parser plugins
func (r *Registry) ListParsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.parsers)
}

// Info returns the descriptions of every registered plugin, inputs first.
func (r *Registry) Info() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PluginInfo, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == KindInput
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HasInput checks if an input plugin is registered
func (r *Registry) HasInput(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.inputs[name]
	return exists
}

// HasParser checks if a parser plugin is registered
func (r *Registry) HasParser(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.parsers[name]
	return exists
}

// Clear removes all registered plugins (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inputs = make(map[string]InputFactory)
	r.parsers = make(map[string]ParserFactory)
	r.infos = make(map[string]PluginInfo)
}

// log is resolved on use: plugins register from init, before the CLI has
// configured the global logger.
func (r *Registry) log() *zap.Logger {
	return logger.Get().With(zap.String("component", "plugin_registry"))
}

func infoKey(kind Kind, name string) string { return string(kind) + "/" + name }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Global registry functions

// RegisterInput registers an input plugin in the global registry
func RegisterInput(name, description string, factory InputFactory) error {
	return globalRegistry.RegisterInput(name, description, factory)
}

// RegisterParser registers a parser plugin in the global registry
func RegisterParser(name, description string, factory ParserFactory) error {
	return globalRegistry.RegisterParser(name, description, factory)
}

// Input creates an input plugin from the global registry
func Input(name string) (spi.InputPlugin, error) {
	return globalRegistry.Input(name)
}

// Parser creates a parser plugin from the global registry
func Parser(name string) (spi.ParserPlugin, error) {
	return globalRegistry.Parser(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
