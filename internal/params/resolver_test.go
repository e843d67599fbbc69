package params

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/metrics"
	"github.com/felixgeelhaar/specflow/internal/provider"
)

// fakeCatalog is a Catalog backed by a static map
type fakeCatalog struct {
	backends map[string]provider.BackendConfig
}

func (f *fakeCatalog) Describe(backendID string) (*provider.Capabilities, *provider.Preset, error) {
	config, ok := f.backends[backendID]
	if !ok {
		return nil, nil, errors.NewBackendUnknownError(backendID)
	}
	caps := config.Capabilities
	preset := config.Preset
	return &caps, &preset, nil
}

func newTestCatalog() *fakeCatalog {
	return &fakeCatalog{backends: map[string]provider.BackendConfig{
		"demo-model": {
			ID: "demo-model",
			Capabilities: provider.Capabilities{
				Family:          provider.FamilyAnthropic,
				MaxOutputTokens: 8192,
				TemperatureMin:  0.0,
				TemperatureMax:  1.0,
			},
			Preset: provider.Preset{
				Temperature: 0.7,
				TopP:        1.0,
				Timeout:     120 * time.Second,
				PhaseTemperature: map[string]float64{
					"solutioning": 0.3,
					"intake":      1.8, // beyond provider range on purpose
				},
			},
		},
	}}
}

func newTestResolver() *Resolver {
	return NewResolver(newTestCatalog(), nil)
}

func TestResolveDefaults(t *testing.T) {
	resolver := newTestResolver()

	res, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.7, res.Params.Temperature)
	assert.Equal(t, 8192, res.Params.MaxOutputTokens)
	assert.Equal(t, SourcePreset, res.Params.Source)
	assert.False(t, res.CacheHit)
	assert.Empty(t, res.Constraints)
}

func TestResolveCacheHitCount(t *testing.T) {
	resolver := newTestResolver()

	first, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)
	second, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)

	assert.Equal(t, first.Params, second.Params)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, int64(1), resolver.CacheHits())

	third, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.Equal(t, int64(2), resolver.CacheHits())
}

func TestResolveCacheCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	resolver := NewResolver(newTestCatalog(), m)

	_, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)
	_, err = resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolveCacheMisses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolveCacheHits))
}

func TestResolveInvalidate(t *testing.T) {
	resolver := newTestResolver()

	_, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)
	resolver.Invalidate("demo-model")

	res, err := resolver.Resolve("demo-model", "", nil)
	require.NoError(t, err)
	assert.False(t, res.CacheHit, "invalidated entry must be recomputed")
}

func TestResolveUnknownBackend(t *testing.T) {
	resolver := newTestResolver()

	_, err := resolver.Resolve("nope", "", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeParamBackendUnknown))
}

func TestResolvePhaseAdjustment(t *testing.T) {
	resolver := newTestResolver()

	res, err := resolver.Resolve("demo-model", "solutioning", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.3, res.Params.Temperature)
	assert.Equal(t, SourcePhase, res.Params.Source)
}

func TestResolvePhaseAdjustmentClamped(t *testing.T) {
	resolver := newTestResolver()

	res, err := resolver.Resolve("demo-model", "intake", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Params.Temperature)
	require.NotEmpty(t, res.Constraints)
	assert.Equal(t, "temperature", res.Constraints[0].Field)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveOverridePrecedence(t *testing.T) {
	resolver := newTestResolver()

	temp := 0.9
	res, err := resolver.Resolve("demo-model", "solutioning", &Overrides{Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, 0.9, res.Params.Temperature, "override beats phase adjustment")
	assert.Equal(t, SourceOverride, res.Params.Source)
	assert.False(t, res.CacheHit, "overridden calls bypass the cache")
}

func TestResolveTemperatureNeverOutsideRange(t *testing.T) {
	resolver := newTestResolver()

	for _, requested := range []float64{-5, -0.1, 0.5, 1.1, 99} {
		temp := requested
		res, err := resolver.Resolve("demo-model", "", &Overrides{Temperature: &temp})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Params.Temperature, 0.0)
		assert.LessOrEqual(t, res.Params.Temperature, 1.0)
	}
}

func TestResolveMaxTokensHardClamp(t *testing.T) {
	resolver := newTestResolver()

	tokens := 100000
	res, err := resolver.Resolve("demo-model", "", &Overrides{MaxOutputTokens: &tokens})
	require.NoError(t, err)

	assert.Equal(t, 8192, res.Params.MaxOutputTokens)
	require.NotEmpty(t, res.Constraints)
	assert.Equal(t, "max_output_tokens", res.Constraints[0].Field)
}

func TestResolveTimeoutClampedIntoRange(t *testing.T) {
	resolver := newTestResolver()

	tests := []struct {
		requested time.Duration
		want      time.Duration
		clamped   bool
	}{
		{5 * time.Second, MinTimeout, true},
		{60 * time.Second, 60 * time.Second, false},
		{2 * time.Hour, MaxTimeout, true},
	}

	for _, tt := range tests {
		timeout := tt.requested
		res, err := resolver.Resolve("demo-model", "", &Overrides{Timeout: &timeout})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Params.Timeout)

		found := false
		for _, c := range res.Constraints {
			if c.Field == "timeout" {
				found = true
			}
		}
		assert.Equal(t, tt.clamped, found, "timeout clamp recording for %s", tt.requested)
	}
}

func TestResolveStabilityWarning(t *testing.T) {
	resolver := newTestResolver()

	temp := 0.2
	topP := 0.5
	res, err := resolver.Resolve("demo-model", "", &Overrides{Temperature: &temp, TopP: &topP})
	require.NoError(t, err)

	found := false
	for _, w := range res.Warnings {
		if w == "temperature and top_p both adjusted from defaults; generation stability may suffer" {
			found = true
		}
	}
	assert.True(t, found, "expected stability warning, got %v", res.Warnings)
}
