// Package params computes, validates, and caches per-backend generation
// parameters. The cache is the only cross-call mutable state in the
// orchestration core; it is safe for concurrent reads and is invalidated
// only by explicit calls, never by TTL.
package params

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/specflow/internal/metrics"
	"github.com/felixgeelhaar/specflow/internal/provider"
)

const (
	// MinTimeout and MaxTimeout bound the effective wall-clock timeout
	MinTimeout = 30 * time.Second
	MaxTimeout = 600 * time.Second
)

// Parameter sources, in increasing precedence
const (
	SourcePreset   = "preset"
	SourcePhase    = "phase"
	SourceOverride = "override"
)

// Catalog provides capability descriptors and default presets per backend.
// The provider registry satisfies this interface.
type Catalog interface {
	Describe(backendID string) (*provider.Capabilities, *provider.Preset, error)
}

// ResolvedParams are the effective generation parameters for one call
type ResolvedParams struct {
	BackendID       string        `json:"backend_id"`
	PhaseTag        string        `json:"phase_tag,omitempty"`
	Temperature     float64       `json:"temperature"`
	TopP            float64       `json:"top_p"`
	MaxOutputTokens int           `json:"max_output_tokens"`
	Timeout         time.Duration `json:"timeout"`

	// Source records the highest-precedence input that shaped the result:
	// preset, phase, or override
	Source string `json:"source"`
}

// Constraint records one applied clamp or adjustment for operator transparency
type Constraint struct {
	Field     string `json:"field"`
	Rule      string `json:"rule"`
	Requested string `json:"requested"`
	Applied   string `json:"applied"`
}

// Resolution is the full result of a resolve call: effective values plus
// the audit trail of every applied constraint
type Resolution struct {
	Params      ResolvedParams `json:"params"`
	Constraints []Constraint   `json:"constraints,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	CacheHit    bool           `json:"cache_hit"`
}

// Overrides carries explicit per-call parameter overrides. Nil fields are
// not overridden.
type Overrides struct {
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens *int
	Timeout         *time.Duration
}

func (o *Overrides) empty() bool {
	return o == nil || (o.Temperature == nil && o.TopP == nil && o.MaxOutputTokens == nil && o.Timeout == nil)
}

// Resolver computes and caches generation parameters per backend
type Resolver struct {
	catalog Catalog
	metrics *metrics.Metrics

	mu    sync.RWMutex
	cache map[string]*Resolution // base resolutions keyed by backend id
	hits  atomic.Int64
}

// NewResolver creates a Resolver backed by the given catalog
func NewResolver(catalog Catalog, m *metrics.Metrics) *Resolver {
	if m == nil {
		m = metrics.Nop()
	}
	return &Resolver{
		catalog: catalog,
		metrics: m,
		cache:   make(map[string]*Resolution),
	}
}

// Resolve computes the effective parameters for a backend. Precedence is
// explicit override > phase-specific adjustment > backend preset. Calls
// without overrides are served from the per-backend cache.
func (r *Resolver) Resolve(backendID, phaseTag string, overrides *Overrides) (*Resolution, error) {
	if !overrides.empty() {
		// Overridden calls bypass the cache entirely
		base, caps, preset, err := r.compute(backendID)
		if err != nil {
			return nil, err
		}
		applyPhase(base, preset, caps, phaseTag)
		applyOverrides(base, caps, preset, overrides)
		finishResolution(base, preset)
		return base, nil
	}

	base, caps, preset, hit, err := r.cachedBase(backendID)
	if err != nil {
		return nil, err
	}

	result := cloneResolution(base)
	result.CacheHit = hit
	applyPhase(result, preset, caps, phaseTag)
	finishResolution(result, preset)
	return result, nil
}

// cachedBase returns the base (preset-only) resolution for a backend,
// computing and caching it on first use
func (r *Resolver) cachedBase(backendID string) (*Resolution, *provider.Capabilities, *provider.Preset, bool, error) {
	r.mu.RLock()
	cached, ok := r.cache[backendID]
	r.mu.RUnlock()

	if ok {
		r.hits.Add(1)
		r.metrics.ResolveCacheHits.Inc()
		// Capability metadata is still needed for phase clamping
		caps, preset, err := r.catalog.Describe(backendID)
		if err != nil {
			return nil, nil, nil, false, err
		}
		return cached, caps, preset, true, nil
	}

	r.metrics.ResolveCacheMisses.Inc()
	base, caps, preset, err := r.compute(backendID)
	if err != nil {
		return nil, nil, nil, false, err
	}

	r.mu.Lock()
	r.cache[backendID] = base
	r.mu.Unlock()

	return base, caps, preset, false, nil
}

// compute builds the preset-sourced base resolution for a backend
func (r *Resolver) compute(backendID string) (*Resolution, *provider.Capabilities, *provider.Preset, error) {
	caps, preset, err := r.catalog.Describe(backendID)
	if err != nil {
		return nil, nil, nil, err
	}

	result := &Resolution{
		Params: ResolvedParams{
			BackendID: backendID,
			TopP:      preset.TopP,
			Source:    SourcePreset,
		},
	}

	result.Params.Temperature = clampTemperature(result, preset.Temperature, caps)

	maxTokens := preset.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = caps.MaxOutputTokens
	}
	result.Params.MaxOutputTokens = clampMaxTokens(result, maxTokens, caps)

	result.Params.Timeout = clampTimeout(result, preset.Timeout)

	return result, caps, preset, nil
}

// applyPhase layers a phase-specific temperature adjustment onto a resolution
func applyPhase(result *Resolution, preset *provider.Preset, caps *provider.Capabilities, phaseTag string) {
	if phaseTag == "" {
		return
	}
	result.Params.PhaseTag = phaseTag

	adjusted, ok := preset.PhaseTemperature[phaseTag]
	if !ok {
		return
	}

	result.Params.Temperature = clampTemperature(result, adjusted, caps)
	result.Params.Source = SourcePhase
}

// applyOverrides layers explicit overrides onto a resolution
func applyOverrides(result *Resolution, caps *provider.Capabilities, preset *provider.Preset, overrides *Overrides) {
	if overrides.Temperature != nil {
		result.Params.Temperature = clampTemperature(result, *overrides.Temperature, caps)
		result.Params.Source = SourceOverride
	}
	if overrides.TopP != nil {
		result.Params.TopP = *overrides.TopP
		result.Params.Source = SourceOverride
	}
	if overrides.MaxOutputTokens != nil {
		result.Params.MaxOutputTokens = clampMaxTokens(result, *overrides.MaxOutputTokens, caps)
		result.Params.Source = SourceOverride
	}
	if overrides.Timeout != nil {
		result.Params.Timeout = clampTimeout(result, *overrides.Timeout)
		result.Params.Source = SourceOverride
	}
}

// finishResolution applies cross-parameter checks after all layers
func finishResolution(result *Resolution, preset *provider.Preset) {
	if result.Params.Temperature != preset.Temperature && result.Params.TopP != preset.TopP {
		result.Warnings = append(result.Warnings,
			"temperature and top_p both adjusted from defaults; generation stability may suffer")
	}
}

// clampTemperature clamps a temperature into the provider's valid range,
// recording the clamp as both a constraint and a warning
func clampTemperature(result *Resolution, value float64, caps *provider.Capabilities) float64 {
	applied := value
	if applied < caps.TemperatureMin {
		applied = caps.TemperatureMin
	}
	if applied > caps.TemperatureMax {
		applied = caps.TemperatureMax
	}

	if applied != value {
		result.Constraints = append(result.Constraints, Constraint{
			Field:     "temperature",
			Rule:      fmt.Sprintf("provider range [%.2f, %.2f]", caps.TemperatureMin, caps.TemperatureMax),
			Requested: fmt.Sprintf("%.2f", value),
			Applied:   fmt.Sprintf("%.2f", applied),
		})
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("temperature %.2f clamped to %.2f", value, applied))
	}

	return applied
}

// clampMaxTokens hard-clamps an output length to the backend limit
func clampMaxTokens(result *Resolution, value int, caps *provider.Capabilities) int {
	if value <= caps.MaxOutputTokens {
		return value
	}

	result.Constraints = append(result.Constraints, Constraint{
		Field:     "max_output_tokens",
		Rule:      fmt.Sprintf("backend limit %d", caps.MaxOutputTokens),
		Requested: fmt.Sprintf("%d", value),
		Applied:   fmt.Sprintf("%d", caps.MaxOutputTokens),
	})
	return caps.MaxOutputTokens
}

// clampTimeout hard-clamps a timeout into [MinTimeout, MaxTimeout]
func clampTimeout(result *Resolution, value time.Duration) time.Duration {
	applied := value
	if applied < MinTimeout {
		applied = MinTimeout
	}
	if applied > MaxTimeout {
		applied = MaxTimeout
	}

	if applied != value {
		result.Constraints = append(result.Constraints, Constraint{
			Field:     "timeout",
			Rule:      fmt.Sprintf("range [%s, %s]", MinTimeout, MaxTimeout),
			Requested: value.String(),
			Applied:   applied.String(),
		})
	}

	return applied
}

// Invalidate drops the cached resolution for one backend
func (r *Resolver) Invalidate(backendID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, backendID)
}

// InvalidateAll drops every cached resolution
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Resolution)
}

// CacheHits returns the monotonically increasing cache-hit count
func (r *Resolver) CacheHits() int64 {
	return r.hits.Load()
}

// cloneResolution deep-copies a resolution so cached entries are never
// mutated by callers
func cloneResolution(in *Resolution) *Resolution {
	out := &Resolution{
		Params:   in.Params,
		CacheHit: in.CacheHit,
	}
	out.Constraints = append(out.Constraints, in.Constraints...)
	out.Warnings = append(out.Warnings, in.Warnings...)
	return out
}
