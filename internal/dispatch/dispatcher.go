package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/specflow/internal/genclient"
	"github.com/felixgeelhaar/specflow/internal/log"
	"github.com/felixgeelhaar/specflow/internal/metrics"
)

// Generator is the generation-client subset the dispatcher needs
type Generator interface {
	Generate(ctx context.Context, in genclient.Input) (*genclient.Result, error)
}

// Dispatcher issues one generation call per component. The generated map
// is instance-local; parallel dispatch clones the dispatcher per call so
// concurrent calls never share mutable context.
type Dispatcher struct {
	client  Generator
	logger  *log.Logger
	metrics *metrics.Metrics

	generated map[string]string
	batches   int
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the dispatcher metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher over the given generation client
func NewDispatcher(client Generator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:    client,
		logger:    log.Default(),
		metrics:   metrics.Nop(),
		generated: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOne generates a single component. The prompt is scoped to
// exactly this component; a throwing generation call is reported failed
// with the raw message and is never retried here.
func (d *Dispatcher) DispatchOne(ctx context.Context, spec ComponentSpec, dctx *Context) Result {
	start := time.Now()

	out, err := d.client.Generate(ctx, genclient.Input{
		Prompt:   d.buildPrompt(spec, dctx),
		PhaseTag: phaseTag(dctx),
	})
	if err != nil {
		d.logger.Warn("component generation failed",
			"component", spec.Name, "error", err.Error())
		return Result{
			ComponentName: spec.Name,
			Errors:        []string{err.Error()},
			Duration:      time.Since(start),
		}
	}

	code, strategy := Extract(out.Content)

	review := SelfReview(code, dctx)
	if !review.Passed {
		d.metrics.SelfReviewFailures.Inc()
		d.logger.Warn("component failed self-review",
			"component", spec.Name, "issues", len(review.Issues))
		return Result{
			ComponentName: spec.Name,
			Code:          code,
			Strategy:      strategy,
			Errors:        review.Issues,
			Duration:      time.Since(start),
		}
	}

	d.generated[spec.Name] = code
	d.metrics.DispatchedComponents.WithLabelValues("success").Inc()

	return Result{
		ComponentName: spec.Name,
		Success:       true,
		Code:          code,
		Strategy:      strategy,
		Duration:      time.Since(start),
	}
}

// DispatchSequential generates components in dependency order. Direct and
// transitive children of a failed component are skipped without attempting
// generation and are excluded from the generated map.
func (d *Dispatcher) DispatchSequential(ctx context.Context, specs []ComponentSpec, dctx *Context) ([]Result, error) {
	ordered, err := SortByParent(specs)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool)
	results := make([]Result, 0, len(ordered))

	for _, spec := range ordered {
		if spec.Parent != "" && failed[spec.Parent] {
			failed[spec.Name] = true
			results = append(results, skippedResult(spec))
			d.metrics.DispatchedComponents.WithLabelValues("skipped").Inc()
			continue
		}

		result := d.DispatchOne(ctx, spec, dctx)
		if !result.Success {
			failed[spec.Name] = true
			d.metrics.DispatchedComponents.WithLabelValues("failed").Inc()
		}
		results = append(results, result)
	}

	return results, nil
}

// DispatchParallel generates components level by level, issuing calls in
// fixed-size batches. Calls within a batch run concurrently on cloned
// dispatcher instances; batches run strictly in sequence.
func (d *Dispatcher) DispatchParallel(ctx context.Context, specs []ComponentSpec, dctx *Context, maxConcurrency int) ([]Result, error) {
	d.batches = 0
	if maxConcurrency <= 1 {
		return d.DispatchSequential(ctx, specs, dctx)
	}

	ordered, err := SortByParent(specs)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool)
	results := make([]Result, 0, len(ordered))

	for _, level := range Levels(ordered) {
		// Skips resolve synchronously and never consume a batch slot
		pending := make([]ComponentSpec, 0, len(level))
		for _, spec := range level {
			if spec.Parent != "" && failed[spec.Parent] {
				failed[spec.Name] = true
				results = append(results, skippedResult(spec))
				d.metrics.DispatchedComponents.WithLabelValues("skipped").Inc()
				continue
			}
			pending = append(pending, spec)
		}

		for len(pending) > 0 {
			size := maxConcurrency
			if size > len(pending) {
				size = len(pending)
			}
			batch := pending[:size]
			pending = pending[size:]

			d.batches++
			d.metrics.DispatchBatches.Inc()

			batchResults := make([]Result, len(batch))
			var wg sync.WaitGroup
			for i, spec := range batch {
				wg.Add(1)
				go func(i int, spec ComponentSpec) {
					defer wg.Done()
					batchResults[i] = d.clone().DispatchOne(ctx, spec, dctx)
				}(i, spec)
			}
			wg.Wait()

			for _, result := range batchResults {
				if result.Success {
					d.generated[result.ComponentName] = result.Code
				} else {
					failed[result.ComponentName] = true
					d.metrics.DispatchedComponents.WithLabelValues("failed").Inc()
				}
				results = append(results, result)
			}
		}
	}

	return results, nil
}

// Generated returns a copy of the generated-components map
func (d *Dispatcher) Generated() map[string]string {
	out := make(map[string]string, len(d.generated))
	for name, code := range d.generated {
		out[name] = code
	}
	return out
}

// Batches reports how many sequential batches the last parallel run issued
func (d *Dispatcher) Batches() int {
	return d.batches
}

// Clear drops all generated components
func (d *Dispatcher) Clear() {
	d.generated = make(map[string]string)
}

// clone creates an isolated dispatcher with its own generated map,
// pre-seeded with a snapshot of the current one
func (d *Dispatcher) clone() *Dispatcher {
	clone := &Dispatcher{
		client:    d.client,
		logger:    d.logger,
		metrics:   d.metrics,
		generated: make(map[string]string, len(d.generated)),
	}
	for name, code := range d.generated {
		clone.generated[name] = code
	}
	return clone
}

// buildPrompt scopes the prompt to exactly one component. Siblings and
// already-generated components are referenced by name only, never by
// content.
func (d *Dispatcher) buildPrompt(spec ComponentSpec, dctx *Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate the %q component", spec.Name)
	if spec.Type != "" {
		fmt.Fprintf(&b, " of type %q", spec.Type)
	}
	if dctx != nil && dctx.ProjectName != "" {
		fmt.Fprintf(&b, " for project %q", dctx.ProjectName)
	}
	b.WriteString(".\n")

	if spec.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s\n", spec.Description)
	}

	if len(spec.Props) > 0 {
		b.WriteString("\nProps:\n")
		keys := make([]string, 0, len(spec.Props))
		for k := range spec.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, spec.Props[k])
		}
	}

	if spec.Parent != "" {
		fmt.Fprintf(&b, "\nThis component is rendered by %q.\n", spec.Parent)
	}
	if len(spec.Dependencies) > 0 {
		fmt.Fprintf(&b, "\nIt may reference these components by name only: %s.\n",
			strings.Join(spec.Dependencies, ", "))
	}

	if dctx != nil && len(dctx.SharedComponents) > 0 {
		fmt.Fprintf(&b, "\nUse the shared components: %s.\n",
			strings.Join(dctx.SharedComponents, ", "))
	}

	if generated := d.generatedNames(); len(generated) > 0 {
		fmt.Fprintf(&b, "\nAlready generated: %s.\n", strings.Join(generated, ", "))
	}

	b.WriteString("\nReturn only the component source code.")
	return b.String()
}

func (d *Dispatcher) generatedNames() []string {
	names := make([]string, 0, len(d.generated))
	for name := range d.generated {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func phaseTag(dctx *Context) string {
	if dctx == nil {
		return ""
	}
	return dctx.PhaseTag
}

func skippedResult(spec ComponentSpec) Result {
	return Result{
		ComponentName: spec.Name,
		Skipped:       true,
		Errors:        []string{fmt.Sprintf("skipped: parent %q failed", spec.Parent)},
	}
}
