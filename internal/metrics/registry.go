package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the correlation engine's metric instruments
type Registry struct {
	meter metric.Meter

	// Engine Metrics
	EventsIngested       metric.Int64Counter
	EventsSkipped        metric.Int64Counter
	RelationshipsCreated metric.Int64Counter
	RuleFailures         metric.Int64Counter
	DiscoveryDuration    metric.Float64Histogram
	EventCount           metric.Int64ObservableGauge
	RelationshipCount    metric.Int64ObservableGauge

	// Pattern Metrics
	PatternsDetected         metric.Int64Counter
	PatternDetectionDuration metric.Float64Histogram

	// Propagation Metrics
	PropagationRuns metric.Int64Counter
	SectorsAffected metric.Int64Histogram

	// Storage Metrics
	StoreOperationDuration metric.Float64Histogram

	// State for observable metrics
	mu                sync.RWMutex
	eventCount        int64
	relationshipCount int64
}

// NewRegistry creates a new metrics registry with all domain metrics on the
// global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithProvider(otel.GetMeterProvider(), meterName)
}

func NewRegistryWithProvider(provider metric.MeterProvider, meterName string) (*Registry, error) {
	r := &Registry{
		meter: provider.Meter(meterName),
	}

	if err := r.initEngineMetrics(); err != nil {
		return nil, err
	}

	if err := r.initPatternMetrics(); err != nil {
		return nil, err
	}

	if err := r.initPropagationMetrics(); err != nil {
		return nil, err
	}

	if err := r.initStoreMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// initEngineMetrics initializes correlation engine metrics
func (r *Registry) initEngineMetrics() error {
	var err error

	r.EventsIngested, err = r.meter.Int64Counter(
		"cce.engine.events_ingested_total",
		metric.WithDescription("Total number of events accepted by the engine"),
	)
	if err != nil {
		return err
	}

	r.EventsSkipped, err = r.meter.Int64Counter(
		"cce.engine.events_skipped_total",
		metric.WithDescription("Total number of events rejected or skipped"),
	)
	if err != nil {
		return err
	}

	r.RelationshipsCreated, err = r.meter.Int64Counter(
		"cce.engine.relationships_created_total",
		metric.WithDescription("Total number of causal relationships created"),
	)
	if err != nil {
		return err
	}

	r.RuleFailures, err = r.meter.Int64Counter(
		"cce.engine.rule_failures_total",
		metric.WithDescription("Rule strategy failures isolated during discovery"),
	)
	if err != nil {
		return err
	}

	r.DiscoveryDuration, err = r.meter.Float64Histogram(
		"cce.engine.discovery_duration",
		metric.WithDescription("Duration of relationship discovery per added event in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500),
	)
	if err != nil {
		return err
	}

	r.EventCount, err = r.meter.Int64ObservableGauge(
		"cce.engine.event_count",
		metric.WithDescription("Events currently held by the engine"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.eventCount)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.RelationshipCount, err = r.meter.Int64ObservableGauge(
		"cce.engine.relationship_count",
		metric.WithDescription("Relationships currently held by the engine"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.relationshipCount)
			return nil
		}),
	)

	return err
}

// initPatternMetrics initializes pattern detector metrics
func (r *Registry) initPatternMetrics() error {
	var err error

	r.PatternsDetected, err = r.meter.Int64Counter(
		"cce.patterns.detected_total",
		metric.WithDescription("Total number of patterns reported by detection runs"),
	)
	if err != nil {
		return err
	}

	r.PatternDetectionDuration, err = r.meter.Float64Histogram(
		"cce.patterns.detection_duration",
		metric.WithDescription("Duration of a full pattern detection pass in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000),
	)

	return err
}

// initPropagationMetrics initializes sector propagation metrics
func (r *Registry) initPropagationMetrics() error {
	var err error

	r.PropagationRuns, err = r.meter.Int64Counter(
		"cce.propagation.runs_total",
		metric.WithDescription("Total number of sector impact propagations"),
	)
	if err != nil {
		return err
	}

	r.SectorsAffected, err = r.meter.Int64Histogram(
		"cce.propagation.sectors_affected",
		metric.WithDescription("Secondary sectors affected per propagation"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 8, 13),
	)

	return err
}

// initStoreMetrics initializes snapshot storage metrics
func (r *Registry) initStoreMetrics() error {
	var err error

	r.StoreOperationDuration, err = r.meter.Float64Histogram(
		"cce.store.operation_duration",
		metric.WithDescription("Snapshot store operation latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 50, 100, 500, 1000, 5000),
	)

	return err
}

// SetEngineSize records the engine's current event and relationship counts
func (r *Registry) SetEngineSize(events, relationships int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventCount = int64(events)
	r.relationshipCount = int64(relationships)
}

// Helper methods for recording metrics with common attribute patterns

// RecordEventIngested records an accepted event and its discovery cost
func (r *Registry) RecordEventIngested(ctx context.Context, eventType string, durationMS float64) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	r.EventsIngested.Add(ctx, 1, attrs)
	r.DiscoveryDuration.Record(ctx, durationMS, attrs)
}

// RecordEventSkipped records an event that was not stored
func (r *Registry) RecordEventSkipped(ctx context.Context, reason string) {
	r.EventsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRelationship records a created relationship
func (r *Registry) RecordRelationship(ctx context.Context, method, causalityType string) {
	r.RelationshipsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("causality_type", causalityType),
	))
}

// RecordRuleFailure records an isolated strategy failure
func (r *Registry) RecordRuleFailure(ctx context.Context, rule string) {
	r.RuleFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordPatternDetection records one detection pass
func (r *Registry) RecordPatternDetection(ctx context.Context, durationMS float64, countsByKind map[string]int) {
	r.PatternDetectionDuration.Record(ctx, durationMS)
	for kind, n := range countsByKind {
		r.PatternsDetected.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordPropagation records a sector propagation
func (r *Registry) RecordPropagation(ctx context.Context, category string, affected int) {
	attrs := metric.WithAttributes(attribute.String("category", category))
	r.PropagationRuns.Add(ctx, 1, attrs)
	r.SectorsAffected.Record(ctx, int64(affected), attrs)
}

// RecordStoreOperation records a snapshot store call
func (r *Registry) RecordStoreOperation(ctx context.Context, store, operation string, durationMS float64, success bool) {
	r.StoreOperationDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}
