package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/cache"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/database"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/repository"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/causal-correlation-engine/internal/metrics"
	"github.com/davidleathers/causal-correlation-engine/internal/service/analytics"
	"github.com/davidleathers/causal-correlation-engine/internal/service/businessrules"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
	"github.com/davidleathers/causal-correlation-engine/internal/service/patterns"
	"github.com/davidleathers/causal-correlation-engine/internal/service/scenario"
	"github.com/davidleathers/causal-correlation-engine/internal/service/sectorimpact"
)

// minPathLength is the shortest chain reported as a critical path
const minPathLength = 3

type patternStore interface {
	SavePatterns(ctx context.Context, sessionID uuid.UUID, result pattern.Result, detectedAt time.Time) error
}

type namedStore struct {
	name  string
	store repository.SnapshotStore
}

// app wires the engine, analyzer and optional session stores for one process
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Registry
	library  *rule.Library
	out      io.Writer
	stores   []namedStore
	patterns patternStore
	closers  []func()
}

type scenarioResult struct {
	Name       string
	SessionID  uuid.UUID
	Statistics correlation.Statistics
	Patterns   pattern.Result
	Paths      []analytics.Path
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg *metrics.Registry, out io.Writer) (*app, error) {
	library, err := businessrules.NewLibrary(logger)
	if err != nil {
		return nil, fmt.Errorf("building rule library: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, metrics: reg, library: library, out: out}

	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := cache.NewSessionStore(client, cfg.Redis.SessionTTL,
			cache.WithLogger(logger), cache.WithMetrics(reg))
		if err != nil {
			a.close()
			return nil, err
		}
		a.stores = append(a.stores, namedStore{name: "redis", store: store})
	}

	if cfg.Database.Enabled() {
		pool, err := database.NewConnectionPool(ctx, cfg.Database, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		store := repository.NewPostgresStore(pool.Pool(),
			repository.WithLogger(logger), repository.WithMetrics(reg))
		a.stores = append(a.stores, namedStore{name: "postgres", store: store})
		a.patterns = store
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// runScenario ingests events into a fresh engine, prints the analysis and,
// with save set, writes the session to every configured store.
func (a *app) runScenario(ctx context.Context, name string, events []*event.Event, save bool) (res *scenarioResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "correlator", "run_scenario", attribute.String("scenario", name))
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		RecordScenarioRun(name, err, time.Since(start))
	}()

	detector, err := patterns.NewDetector(a.cfg.Patterns)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With(zap.String("scenario", name))
	engine, err := correlation.NewEngine(a.cfg.Engine, a.library,
		correlation.WithLogger(logger),
		correlation.WithMetrics(a.metrics),
		correlation.WithPatternDetector(detector))
	if err != nil {
		return nil, err
	}
	if err := engine.AddEvents(events); err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", name, err)
	}

	res = &scenarioResult{Name: name, Patterns: engine.DetectPatterns()}
	analyzer, err := analytics.NewAnalyzer(engine, a.cfg.Analytics, analytics.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	res.Paths, err = analyzer.CriticalPaths(minPathLength)
	if err != nil {
		return nil, err
	}
	res.Statistics = engine.Statistics()
	UpdateScenarioSize(name, res.Statistics.TotalEvents, res.Statistics.TotalRelationships)

	a.printf("\nSCENARIO: %s\n", name)
	a.printf("%s", analyzer.GenerateSummaryReport())
	a.printPatterns(res.Patterns)
	a.printPaths(res.Paths)

	if save && len(a.stores) > 0 {
		res.SessionID = uuid.New()
		if err := a.save(ctx, res.SessionID, engine.Snapshot(), res.Patterns); err != nil {
			return nil, err
		}
		a.printf("Session saved: %s\n", res.SessionID)
	}

	logger.Info("scenario analyzed",
		zap.Int("events", res.Statistics.TotalEvents),
		zap.Int("relationships", res.Statistics.TotalRelationships),
		zap.Int("patterns", res.Patterns.Total()),
		zap.Int("critical_paths", len(res.Paths)))
	return res, nil
}

func (a *app) save(ctx context.Context, sessionID uuid.UUID, snap *correlation.Snapshot, result pattern.Result) error {
	for _, s := range a.stores {
		err := s.store.Save(ctx, sessionID, snap)
		RecordSessionSave(s.name, err)
		if err != nil {
			return fmt.Errorf("saving session to %s: %w", s.name, err)
		}
	}
	if a.patterns != nil {
		if err := a.patterns.SavePatterns(ctx, sessionID, result, snap.TakenAt); err != nil {
			return fmt.Errorf("saving patterns: %w", err)
		}
	}
	return nil
}

func (a *app) printPatterns(result pattern.Result) {
	a.printf("DETECTED PATTERNS (%d)\n", result.Total())
	a.printf("%s\n", strings.Repeat("-", 60))
	for _, kind := range pattern.AllKinds() {
		ps := result[kind]
		RecordPatternsFound(kind.String(), len(ps))
		if len(ps) == 0 {
			continue
		}
		a.printf("  %s: %d\n", kind, len(ps))
		for i, p := range ps {
			if i == a.cfg.Analytics.TopN {
				break
			}
			a.printf("    %s (support %.2f, confidence %.2f)\n", p.Description, p.Support, p.Confidence)
		}
	}
	a.printf("\n")
}

func (a *app) printPaths(paths []analytics.Path) {
	a.printf("CRITICAL PATHS (%d)\n", len(paths))
	a.printf("%s\n", strings.Repeat("-", 60))
	for i, p := range paths {
		if i == a.cfg.Analytics.TopN {
			break
		}
		a.printf("  %s (weight %.2f)\n", strings.Join(p.Titles(), " -> "), p.AverageWeight)
	}
	a.printf("\n")
}

// runScenarios generates and analyzes each named scenario in order
func (a *app) runScenarios(ctx context.Context, names []string, save bool) ([]*scenarioResult, error) {
	gen := scenario.NewGenerator(a.cfg.ScenarioStart(time.Now()), a.cfg.Scenario.Seed)
	results := make([]*scenarioResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		events, err := gen.Generate(name)
		if err != nil {
			return results, err
		}
		res, err := a.runScenario(ctx, name, events, save)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// propagate runs one sector shock through the default sector graph and
// prints the resulting price multipliers.
func (a *app) propagate(impact sectorimpact.Impact) (*sectorimpact.Result, error) {
	p, err := sectorimpact.NewPropagator(sectorimpact.DefaultGraph(), sectorimpact.DefaultModifiers(), a.cfg.Propagator,
		sectorimpact.WithLogger(a.logger), sectorimpact.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	res, err := p.Propagate(impact)
	if err != nil {
		return nil, err
	}

	mult := res.Multipliers()
	a.printf("\nSECTOR IMPACT: %s %s %+.2f\n", impact.Sector, impact.Category, impact.Magnitude)
	a.printf("%s\n", strings.Repeat("-", 60))
	a.printf("  %-10s x%s (primary)\n", impact.Sector, mult[impact.Sector])
	for _, e := range res.Secondary {
		a.printf("  %-10s x%s (hop %d via %s)\n", e.Sector, mult[e.Sector], e.Hop, e.Via)
	}
	return res, nil
}

func parseScenarios(s string) ([]string, error) {
	if s == "" || s == "all" {
		return scenario.Names(), nil
	}
	known := make(map[string]bool)
	for _, n := range scenario.Names() {
		known[n] = true
	}
	var names []string
	for _, n := range strings.Split(s, ",") {
		n = strings.TrimSpace(n)
		if !known[n] {
			return nil, fmt.Errorf("unknown scenario %q (known: %s)", n, strings.Join(scenario.Names(), ", "))
		}
		names = append(names, n)
	}
	return names, nil
}
