package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// stubBackend is a minimal Backend for registry tests
type stubBackend struct {
	caps   Capabilities
	closed bool
}

func (s *stubBackend) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return &GenerateResponse{Content: "ok"}, nil
}

func (s *stubBackend) Capabilities() *Capabilities { return &s.caps }
func (s *stubBackend) Health(ctx context.Context) error {
	return nil
}
func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func demoConfig() *BackendConfig {
	return &BackendConfig{
		ID:      "demo-model",
		Model:   "demo-1",
		Enabled: true,
		Capabilities: Capabilities{
			Family:           FamilyLocal,
			MaxOutputTokens:  8192,
			MaxContextTokens: 200000,
			TemperatureMin:   0.0,
			TemperatureMax:   1.0,
		},
		Preset: Preset{
			Temperature: 0.7,
			TopP:        1.0,
			Timeout:     120 * time.Second,
		},
	}
}

func TestRegistryRegisterGet(t *testing.T) {
	registry := NewRegistry()
	backend := &stubBackend{}

	require.NoError(t, registry.Register("demo-model", backend, demoConfig()))

	got, err := registry.Get("demo-model")
	require.NoError(t, err)
	assert.Equal(t, backend, got)

	// Duplicate registration is rejected
	err = registry.Register("demo-model", backend, demoConfig())
	assert.Error(t, err)
}

func TestRegistryGetUnknown(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeParamBackendUnknown))
}

func TestRegistryDescribe(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("demo-model", &stubBackend{}, demoConfig()))

	caps, preset, err := registry.Describe("demo-model")
	require.NoError(t, err)
	assert.Equal(t, 8192, caps.MaxOutputTokens)
	assert.Equal(t, 0.7, preset.Temperature)
}

func TestRegistryDescribeMissingCapabilities(t *testing.T) {
	registry := NewRegistry()
	config := demoConfig()
	config.Capabilities.MaxOutputTokens = 0
	require.NoError(t, registry.Register("demo-model", &stubBackend{}, config))

	_, _, err := registry.Describe("demo-model")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeParamNoCapabilities))
}

func TestRegistryRemoveCloses(t *testing.T) {
	registry := NewRegistry()
	backend := &stubBackend{}
	require.NoError(t, registry.Register("demo-model", backend, demoConfig()))

	require.NoError(t, registry.Remove("demo-model"))
	assert.True(t, backend.closed)

	_, err := registry.Get("demo-model")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specflow.yaml")

	content := `backends:
  - id: demo-model
    model: demo-1
    enabled: true
    capabilities:
      family: anthropic
      max_output_tokens: 8192
      max_context_tokens: 200000
      temperature_min: 0.0
      temperature_max: 1.0
    preset:
      temperature: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	file, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, file.Backends, 1)

	backend := file.Backends[0]
	assert.Equal(t, "demo-model", backend.ID)
	assert.Equal(t, 8192, backend.Capabilities.MaxOutputTokens)
	// Defaults applied for unset fields
	assert.Equal(t, 120*time.Second, backend.Preset.Timeout)
	assert.Equal(t, 1.0, backend.Preset.TopP)
}

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}
