package correlation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/service/patterns"
)

// Recorder receives engine metrics. *metrics.Registry satisfies it.
type Recorder interface {
	RecordEventIngested(ctx context.Context, eventType string, durationMS float64)
	RecordEventSkipped(ctx context.Context, reason string)
	RecordRelationship(ctx context.Context, method, causalityType string)
	RecordRuleFailure(ctx context.Context, rule string)
	RecordPatternDetection(ctx context.Context, durationMS float64, countsByKind map[string]int)
	SetEngineSize(events, relationships int)
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m Recorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock sets the clock used for relationship discovery timestamps
func WithClock(c event.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPatternDetector replaces the detector used by DetectPatterns
func WithPatternDetector(d *patterns.Detector) Option {
	return func(e *Engine) {
		if d != nil {
			e.detector = d
		}
	}
}

type timelineRef struct {
	at  time.Time
	seq int
	id  uuid.UUID
}

// Engine owns a session's events, the relationships discovered between them
// and the adjacency index over those relationships. One writer at a time;
// readers share a read lock and receive clones.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	library  *rule.Library
	detector *patterns.Detector
	logger   *zap.Logger
	metrics  Recorder
	clock    event.Clock

	*graphState

	stats            counters
	patternsDetected atomic.Int64
}

// graphState holds the events, relationships and indexes swapped as one unit
type graphState struct {
	events   map[uuid.UUID]*event.Event
	seqOf    map[uuid.UUID]int
	order    []uuid.UUID
	timeline []timelineRef

	relationships map[uuid.UUID]*causal.Relationship
	relOrder      []uuid.UUID
	byKey         map[causal.Key]uuid.UUID
	outgoing      map[uuid.UUID][]uuid.UUID
	incoming      map[uuid.UUID][]uuid.UUID
}

func newGraphState() *graphState {
	return &graphState{
		events:        make(map[uuid.UUID]*event.Event),
		seqOf:         make(map[uuid.UUID]int),
		relationships: make(map[uuid.UUID]*causal.Relationship),
		byKey:         make(map[causal.Key]uuid.UUID),
		outgoing:      make(map[uuid.UUID][]uuid.UUID),
		incoming:      make(map[uuid.UUID][]uuid.UUID),
	}
}

type counters struct {
	eventsProcessed         int
	eventsSkipped           int
	relationshipsDiscovered int
	manualRelationships     int
	rulesApplied            int
	ruleFailures            int
}

// NewEngine creates an engine over an explicitly constructed rule library
func NewEngine(cfg Config, library *rule.Library, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if library == nil {
		return nil, errors.NewValidationError("MISSING_RULE_LIBRARY", "rule library is required").WithField("library")
	}

	e := &Engine{
		cfg:     cfg,
		library: library,
		logger:  zap.NewNop(),
		metrics: noopRecorder{},
		clock:   event.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil {
		d, err := patterns.NewDetector(patterns.DefaultConfig())
		if err != nil {
			return nil, err
		}
		e.detector = d
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.graphState = newGraphState()
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Library() *rule.Library {
	return e.library
}

// AddRule adds a rule to the engine's library
func (e *Engine) AddRule(r rule.Rule) error {
	if err := e.library.AddRule(r); err != nil {
		return err
	}
	e.logger.Debug("rule added", zap.String("rule", r.Name), zap.Int("priority", r.Priority))
	return nil
}

// AddEvent stores an event and, with auto discovery on, relates it to every
// stored event inside the time window. An event whose id is already stored is
// skipped without error.
func (e *Engine) AddEvent(ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		e.metrics.RecordEventSkipped(context.Background(), "invalid")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.events[ev.ID]; exists {
		e.stats.eventsSkipped++
		e.logger.Warn("event already stored, skipping",
			zap.String("event_id", ev.ID.String()),
			zap.String("event_type", ev.Type.String()))
		e.metrics.RecordEventSkipped(context.Background(), "duplicate")
		return nil
	}

	start := time.Now()
	stored := ev.Clone()
	stored.CauseIDs = stored.CauseIDs[:0]
	stored.EffectIDs = stored.EffectIDs[:0]

	e.insert(stored)
	e.stats.eventsProcessed++
	created := 0
	if e.cfg.AutoDiscover {
		created = e.discover(stored)
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	e.metrics.RecordEventIngested(context.Background(), ev.Type.String(), elapsed)
	e.metrics.SetEngineSize(len(e.events), len(e.relationships))
	e.logger.Debug("event added",
		zap.String("event_id", ev.ID.String()),
		zap.String("event_type", ev.Type.String()),
		zap.Int("relationships_created", created))
	return nil
}

// AddEvents adds events in order. Order decides which pairs have been seen when
// a later event is considered. The first invalid event stops the batch.
func (e *Engine) AddEvents(batch []*event.Event) error {
	for i, ev := range batch {
		if err := e.AddEvent(ev); err != nil {
			return fmt.Errorf("batch index %d: %w", i, err)
		}
	}
	return nil
}

func (g *graphState) insert(ev *event.Event) {
	seq := len(g.order)
	g.events[ev.ID] = ev
	g.seqOf[ev.ID] = seq
	g.order = append(g.order, ev.ID)

	ref := timelineRef{at: ev.Timestamp, seq: seq, id: ev.ID}
	i, _ := slices.BinarySearchFunc(g.timeline, ref, compareTimeline)
	g.timeline = slices.Insert(g.timeline, i, ref)
}

func compareTimeline(a, b timelineRef) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return a.seq - b.seq
}

// AddManualRelationship registers an edge without consulting the rule library
// or the confidence floor.
func (e *Engine) AddManualRelationship(causeID, effectID uuid.UUID, typ causal.Type, strength causal.Strength, confidence float64, notes string) (*causal.Relationship, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cause, ok := e.events[causeID]
	if !ok {
		return nil, errors.NewNotFoundError("event").WithID(causeID).WithField("cause_event_id")
	}
	effect, ok := e.events[effectID]
	if !ok {
		return nil, errors.NewNotFoundError("event").WithID(effectID).WithField("effect_event_id")
	}

	rel, err := causal.New(causal.Params{
		CauseID:         causeID,
		EffectID:        effectID,
		Type:            typ,
		Strength:        strength,
		Confidence:      confidence,
		TimeLagMinutes:  event.LagMinutes(cause, effect),
		DiscoveredAt:    e.clock.Now(),
		DiscoveryMethod: causal.MethodManual,
		Notes:           notes,
	})
	if err != nil {
		return nil, err
	}
	if existing, dup := e.byKey[rel.Key()]; dup {
		return nil, errors.NewConflictError("relationship already exists").
			WithID(existing).
			WithDetails(map[string]interface{}{"causality_type": typ.String()})
	}

	e.link(rel)
	e.stats.manualRelationships++
	e.metrics.RecordRelationship(context.Background(), causal.MethodManual, typ.String())
	e.metrics.SetEngineSize(len(e.events), len(e.relationships))
	return rel.Clone(), nil
}

// link stores the relationship and updates both endpoints and the adjacency index
func (g *graphState) link(rel *causal.Relationship) {
	g.relationships[rel.ID] = rel
	g.relOrder = append(g.relOrder, rel.ID)
	g.byKey[rel.Key()] = rel.ID
	g.outgoing[rel.CauseID] = append(g.outgoing[rel.CauseID], rel.ID)
	g.incoming[rel.EffectID] = append(g.incoming[rel.EffectID], rel.ID)

	if cause, ok := g.events[rel.CauseID]; ok {
		cause.AddEffect(rel.ID)
	}
	if effect, ok := g.events[rel.EffectID]; ok {
		effect.AddCause(rel.ID)
	}
}

// DetectPatterns runs every detector over a snapshot of the stored events
func (e *Engine) DetectPatterns() pattern.Result {
	e.mu.RLock()
	events := e.eventsLocked()
	rels := e.relationshipsLocked()
	e.mu.RUnlock()

	start := time.Now()
	result := e.detector.AnalyzeAll(events, rels)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	counts := make(map[string]int, len(result))
	for kind, ps := range result {
		counts[kind.String()] = len(ps)
	}
	e.patternsDetected.Add(int64(result.Total()))
	e.metrics.RecordPatternDetection(context.Background(), elapsed, counts)
	return result
}

// Clear drops events, relationships and statistics. Rules are kept.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	e.stats = counters{}
	e.patternsDetected.Store(0)
	e.metrics.SetEngineSize(0, 0)
	e.logger.Info("correlation engine cleared")
}

type noopRecorder struct{}

func (noopRecorder) RecordEventIngested(context.Context, string, float64) {}

func (noopRecorder) RecordEventSkipped(context.Context, string) {}

func (noopRecorder) RecordRelationship(context.Context, string, string) {}

func (noopRecorder) RecordRuleFailure(context.Context, string) {}

func (noopRecorder) RecordPatternDetection(context.Context, float64, map[string]int) {}

func (noopRecorder) SetEngineSize(int, int) {}
