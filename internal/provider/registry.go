package provider

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// BackendRegistry defines the interface for managing generation backends.
// This interface enables dependency injection and makes testing easier.
type BackendRegistry interface {
	// Register adds a backend to the registry
	Register(id string, backend Backend, config *BackendConfig) error

	// Get retrieves a backend by id
	Get(id string) (Backend, error)

	// Describe returns a backend's capability descriptor and default preset
	Describe(id string) (*Capabilities, *Preset, error)

	// List returns all registered backend ids
	List() []string

	// Remove removes a backend from the registry and closes it
	Remove(id string) error

	// CloseAll closes all registered backends
	CloseAll() error
}

// Registry manages all loaded backends and implements BackendRegistry
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	configs  map[string]*BackendConfig
}

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		configs:  make(map[string]*BackendConfig),
	}
}

// Register adds a backend to the registry
func (r *Registry) Register(id string, backend Backend, config *BackendConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; exists {
		return fmt.Errorf("backend %s already registered", id)
	}

	r.backends[id] = backend
	r.configs[id] = config

	return nil
}

// Get retrieves a backend by id
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[id]
	if !exists {
		return nil, errors.NewBackendUnknownError(id)
	}

	return backend, nil
}

// Describe returns a backend's capability descriptor and default preset.
// Missing capability metadata is a configuration error, not a soft default.
func (r *Registry) Describe(id string) (*Capabilities, *Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[id]
	if !exists {
		return nil, nil, errors.NewBackendUnknownError(id)
	}

	if config.Capabilities.MaxOutputTokens <= 0 {
		return nil, nil, errors.New(errors.ErrCodeParamNoCapabilities,
			fmt.Sprintf("backend %s has no capability metadata", id)).
			WithSuggestion("Declare capabilities.max_output_tokens in specflow.yaml")
	}

	caps := config.Capabilities
	preset := config.Preset
	return &caps, &preset, nil
}

// List returns all registered backend ids
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}

	return ids
}

// Remove removes a backend from the registry and closes it
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend, exists := r.backends[id]
	if !exists {
		return errors.NewBackendUnknownError(id)
	}

	if err := backend.Close(); err != nil {
		return fmt.Errorf("failed to close backend %s: %w", id, err)
	}

	delete(r.backends, id)
	delete(r.configs, id)

	return nil
}

// CloseAll closes all registered backends
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, backend := range r.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close backend %s: %w", id, err))
		}
	}

	r.backends = make(map[string]Backend)
	r.configs = make(map[string]*BackendConfig)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing backends: %v", errs)
	}

	return nil
}

// LoadFromConfig creates and registers a backend from configuration
func (r *Registry) LoadFromConfig(config *BackendConfig) error {
	if config.ID == "" {
		return errors.New(errors.ErrCodeProviderConfig, "backend id is required")
	}

	if !config.Enabled {
		// Skip disabled backends
		return nil
	}

	var backend Backend
	var err error

	switch config.Capabilities.Family {
	case FamilyAnthropic:
		backend, err = NewAnthropicBackend(config)
	case FamilyLocal:
		backend, err = nil, errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("local backends must be registered programmatically: %s", config.ID))
	default:
		return errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("unsupported provider family %q for backend %s", config.Capabilities.Family, config.ID))
	}

	if err != nil {
		return fmt.Errorf("failed to create backend %s: %w", config.ID, err)
	}

	return r.Register(config.ID, backend, config)
}

// RegistryFile is the on-disk shape of the backend registry configuration
type RegistryFile struct {
	Backends []BackendConfig `yaml:"backends"`
}

// LoadConfig loads backend configurations from a YAML file
func LoadConfig(path string) (*RegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read backend config", err)
	}

	var file RegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "yaml", err)
	}

	for i := range file.Backends {
		applyConfigDefaults(&file.Backends[i])
	}

	return &file, nil
}

// applyConfigDefaults fills unset preset fields with sensible values
func applyConfigDefaults(config *BackendConfig) {
	if config.Preset.Timeout == 0 {
		config.Preset.Timeout = 120 * time.Second
	}
	if config.Capabilities.TemperatureMax == 0 {
		config.Capabilities.TemperatureMin = 0.0
		config.Capabilities.TemperatureMax = 1.0
	}
	if config.Preset.TopP == 0 {
		config.Preset.TopP = 1.0
	}
}

// Compile-time verification that Registry implements BackendRegistry
var _ BackendRegistry = (*Registry)(nil)
