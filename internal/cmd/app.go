package cmd

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/specflow/internal/dispatch"
	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/genclient"
	"github.com/felixgeelhaar/specflow/internal/log"
	"github.com/felixgeelhaar/specflow/internal/metrics"
	"github.com/felixgeelhaar/specflow/internal/params"
	"github.com/felixgeelhaar/specflow/internal/phase"
	"github.com/felixgeelhaar/specflow/internal/provider"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

const systemInstruction = "You are a software specification assistant. " +
	"Produce complete, concrete artifacts with no placeholders."

// app bundles the wired collaborators a command needs
type app struct {
	store    phase.Store
	engine   *phase.Engine
	registry *provider.Registry
	client   *genclient.Client
	logger   *log.Logger
}

func newLogger() *log.Logger {
	config := log.DefaultConfig()
	if flagVerbose {
		config = log.DevelopmentConfig()
	}
	return log.New(config)
}

// newStore opens the file-backed project store; commands that never touch
// a generation backend only need this
func newStore() (phase.Store, error) {
	return phase.NewFileStore(flagStateDir)
}

// newRegistry loads and instantiates the configured backends
func newRegistry() (*provider.Registry, error) {
	file, err := provider.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	for i := range file.Backends {
		if err := registry.LoadFromConfig(&file.Backends[i]); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// newApp wires the full engine stack
func newApp() (*app, error) {
	logger := newLogger()

	store, err := newStore()
	if err != nil {
		return nil, err
	}

	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}

	backendID := flagBackend
	if backendID == "" {
		ids := registry.List()
		if len(ids) == 0 {
			return nil, errors.New(errors.ErrCodeProviderConfig,
				"no enabled backends in "+flagConfig)
		}
		backendID = ids[0]
	}

	m := metrics.Nop()
	if flagMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		go serveMetrics(flagMetricsAddr, reg, logger)
	}
	resolver := params.NewResolver(registry, m)
	client := genclient.New(backendID, registry, resolver,
		genclient.WithSystemInstruction(systemInstruction),
		genclient.WithLogger(logger),
		genclient.WithMetrics(m))

	var tokens *dispatch.TokenSet
	if flagTokens != "" {
		tokens, err = dispatch.LoadTokens(flagTokens)
		if err != nil {
			return nil, err
		}
	}

	dispatcher := dispatch.NewDispatcher(client,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m))

	handlers := phase.DefaultHandlers(client, dispatcher, tokens, flagConcurrency)
	engine := phase.NewEngine(store, handlers, client,
		phase.WithLogger(logger),
		phase.WithMetrics(m),
		phase.WithMaxRemedyAttempts(flagMaxRemedy))

	return &app{
		store:    store,
		engine:   engine,
		registry: registry,
		client:   client,
		logger:   logger,
	}, nil
}

// serveMetrics exposes the command's metric registry while the command
// runs; long dispatch and validation runs can be scraped live
func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint stopped", "addr", addr, "error", err.Error())
	}
}

// emit renders data in the selected format; text output uses the given
// rendering function
func emit(data interface{}, text func() string) error {
	p, err := ux.NewPrinter(flagFormat, os.Stdout)
	if err != nil {
		return err
	}
	if flagFormat == "text" || flagFormat == "" {
		return p.Print(text())
	}
	return p.Print(data)
}
