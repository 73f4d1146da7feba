// Package server owns process lifecycle: loading configuration, building
// the schema store and pipeline, wiring the supergraph source's reload
// loop, starting the HTTP listener, and shutting everything down cleanly
// on signal.
//
// Grounded on server/gateway.go's Run/loadGatewaySetting, which opens a
// flat YAML settings file, builds a *gateway.gateway, wraps it in
// otelhttp if tracing is enabled, and runs ListenAndServe behind a
// signal.NotifyContext with a timeout-bounded Shutdown. Generalized here:
// the flat GatewayOption becomes internal/config.Config, the one-shot
// schema build becomes a Watch-driven reload loop, and otelhttp wrapping
// moves into gateway.NewRouter's middleware chain.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/graphql-hive/federation-router/gateway"
	"github.com/graphql-hive/federation-router/internal/config"
	"github.com/graphql-hive/federation-router/internal/executor"
	"github.com/graphql-hive/federation-router/internal/metrics"
	"github.com/graphql-hive/federation-router/internal/normalizer"
	"github.com/graphql-hive/federation-router/internal/parser"
	"github.com/graphql-hive/federation-router/internal/pipeline"
	"github.com/graphql-hive/federation-router/internal/planner"
	"github.com/graphql-hive/federation-router/internal/policy"
	"github.com/graphql-hive/federation-router/internal/schema"
	"github.com/graphql-hive/federation-router/internal/subgraphexec"
	"github.com/graphql-hive/federation-router/internal/supergraphsource"
)

const serviceVersion = "v0.1.0"

// Run loads configPath, brings up the schema store, pipeline, and HTTP
// listener, and blocks until an interrupt or SIGTERM triggers a graceful
// shutdown.
func Run(configPath string) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	store := schema.NewStore(nil)
	p := buildPipeline(cfg, store, reg)

	source, err := buildSupergraphSource(cfg)
	if err != nil {
		logger.Error("failed to build supergraph source", "error", err)
		os.Exit(1)
	}
	events, err := source.Watch(ctx)
	if err != nil {
		logger.Error("failed to start watching supergraph source", "error", err)
		os.Exit(1)
	}
	go reloadLoop(ctx, logger, cfg, p, events)

	var shutdownTracer func(context.Context) error
	if cfg.Telemetry.TracingEnabled {
		shutdownTracer, err = metrics.InitTracer(ctx, cfg.Telemetry.ServiceName, serviceVersion, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
			os.Exit(1)
		}
	}

	h := gateway.NewHandler(p)
	h.MaxBodyBytes = cfg.Limits.MaxBodyBytes
	if cfg.Telemetry.MetricsEnabled {
		h.Metrics = reg
	}
	h.SubgraphDialer = gateway.NewSubgraphDialer()

	handler := gateway.NewRouter(h, cfg.Server, cfg.Telemetry.TracingEnabled)

	timeout, err := time.ParseDuration(cfg.Server.TimeoutDuration)
	if err != nil {
		logger.Error("failed to parse server.timeout_duration", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
	}

	go func() {
		logger.Info("starting router", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("router listener failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down router")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("router shutdown did not complete cleanly", "error", err)
	}
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown did not complete cleanly", "error", err)
		}
	}
	logger.Info("router stopped")
}

// buildPipeline wires one Pipeline off cfg: caches sized per
// query_planner config, the scope-based authorization evaluator, the
// config-backed introspection gate, and an HTTP subgraph transport
// configured from traffic_shaping and reporting dedupe hits to reg.
func buildPipeline(cfg *config.Config, store *schema.Store, reg *metrics.Registry) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Store:           store,
		ParseCache:      parser.NewCache(cfg.QueryPlanner.ParseCacheSize),
		ValidateCache:   parser.NewValidateCache(cfg.QueryPlanner.ValidateCacheSize),
		NormalizeCache:  normalizer.NewCache(cfg.QueryPlanner.NormalizeCacheSize),
		PlanCache:       planner.NewCache(cfg.QueryPlanner.PlanCacheSize),
		ValidationRules: parser.DefaultRules,
		ParseLimits:     parser.Limits{MaxTokens: cfg.Limits.MaxTokens},
		Evaluator:       policy.ScopeEvaluator{},
		Transport:       buildTransport(cfg, reg),
		Introspect:      config.IntrospectionGate{Config: cfg.Introspection},
	}
}

func buildTransport(cfg *config.Config, reg *metrics.Registry) executor.Transport {
	httpClient := &http.Client{
		Transport: &http.Transport{MaxConnsPerHost: cfg.TrafficShapingDefault.MaxConnsPerHost},
	}

	settings := make(map[string]subgraphexec.Settings, len(cfg.TrafficShaping))
	for name, shaping := range cfg.TrafficShaping {
		settings[name] = trafficShapingToSettings(shaping)
	}
	defaults := trafficShapingToSettings(cfg.TrafficShapingDefault)

	return subgraphexec.New(httpClient, settings, defaults, reg.SubgraphDedupeHits.Inc)
}

func trafficShapingToSettings(s config.SubgraphTrafficShaping) subgraphexec.Settings {
	timeout, _ := time.ParseDuration(s.TimeoutDuration)
	initialDelay, _ := time.ParseDuration(s.InitialDelay)
	maxDelay, _ := time.ParseDuration(s.MaxDelay)

	return subgraphexec.Settings{
		Timeout: timeout,
		Retry: subgraphexec.RetryPolicy{
			MaxRetries:   s.MaxRetries,
			InitialDelay: initialDelay,
			Factor:       s.BackoffFactor,
			MaxDelay:     maxDelay,
		},
		DedupeEnabled: s.DedupeEnabled,
	}
}

// buildSupergraphSource picks the configured supergraph source kind.
// "file" (the default) watches a manifest listing each subgraph's name,
// host, and SDL files; "remote" polls each subgraph's introspection
// endpoint directly and needs no filesystem access.
func buildSupergraphSource(cfg *config.Config) (supergraphsource.Source, error) {
	switch cfg.Supergraph.Mode {
	case "remote":
		endpoints := make([]supergraphsource.Endpoint, 0, len(cfg.Supergraph.Subgraphs))
		for _, sg := range cfg.Supergraph.Subgraphs {
			endpoints = append(endpoints, supergraphsource.Endpoint{Name: sg.Name, Host: sg.Host})
		}
		remote := supergraphsource.NewRemoteSource(endpoints)
		if d, err := time.ParseDuration(cfg.Supergraph.PollInterval); err == nil {
			remote.PollInterval = d
		}
		if cfg.Supergraph.FetchRetries > 0 {
			remote.FetchRetries = cfg.Supergraph.FetchRetries
		}
		if d, err := time.ParseDuration(cfg.Supergraph.FetchTimeout); err == nil {
			remote.FetchTimeout = d
		}
		return remote, nil
	case "", "file":
		if cfg.Supergraph.Path == "" {
			return nil, fmt.Errorf("server: supergraph.path is required when supergraph.mode is \"file\"")
		}
		return supergraphsource.NewFileSource(cfg.Supergraph.Path), nil
	default:
		return nil, fmt.Errorf("server: unknown supergraph.mode %q", cfg.Supergraph.Mode)
	}
}

// reloadLoop consumes the supergraph source's events, building and
// swapping in a new schema.State for every Changed event. A failed
// build logs and keeps serving the previous generation; Unchanged and
// Err-only events never touch the store.
func reloadLoop(ctx context.Context, logger *slog.Logger, cfg *config.Config, p *pipeline.Pipeline, events <-chan supergraphsource.SourceEvent) {
	generation := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Err != nil {
				logger.Error("supergraph source error", "error", event.Err)
				continue
			}
			if event.Unchanged || event.Changed == nil {
				continue
			}

			sources, err := decodeSupergraphSources(cfg, event.Changed)
			if err != nil {
				logger.Error("failed to decode supergraph source payload", "error", err)
				continue
			}

			generation++
			state, err := schema.Build(generation, sources)
			if err != nil {
				logger.Error("failed to build schema generation", "generation", generation, "error", err)
				continue
			}

			p.Store.Swap(state)
			p.SchemaReloaded()
			logger.Info("loaded schema generation", "generation", generation, "subgraphs", len(sources))
		}
	}
}

// decodeSupergraphSources interprets one Changed payload according to
// the configured source mode: a "file"-mode payload is a subgraph
// manifest whose schema_files are read from disk, while a "remote"-mode
// payload already carries each subgraph's polled SDL inline.
func decodeSupergraphSources(cfg *config.Config, payload []byte) ([]schema.SubgraphSource, error) {
	if cfg.Supergraph.Mode == "remote" {
		var sources []schema.SubgraphSource
		if err := json.Unmarshal(payload, &sources); err != nil {
			return nil, fmt.Errorf("server: decoding polled subgraph sources: %w", err)
		}
		return sources, nil
	}

	entries, err := config.ParseSubgraphManifest(payload)
	if err != nil {
		return nil, err
	}

	sources := make([]schema.SubgraphSource, 0, len(entries))
	for _, entry := range entries {
		sdl, err := readSchemaFiles(entry.SchemaFiles)
		if err != nil {
			return nil, fmt.Errorf("server: reading schema files for subgraph %q: %w", entry.Name, err)
		}
		sources = append(sources, schema.SubgraphSource{Name: entry.Name, Host: entry.Host, SDL: sdl})
	}
	return sources, nil
}

func readSchemaFiles(paths []string) ([]byte, error) {
	var combined []byte
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		combined = append(combined, content...)
		combined = append(combined, '\n')
	}
	return combined, nil
}
