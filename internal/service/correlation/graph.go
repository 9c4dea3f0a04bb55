package correlation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Graph is a node/edge export for external graph tooling
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type Node struct {
	ID        uuid.UUID      `json:"id"`
	Type      event.Type     `json:"event_type"`
	Severity  event.Severity `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Title     string         `json:"title"`
	Magnitude float64        `json:"magnitude"`
}

type Edge struct {
	ID         uuid.UUID       `json:"id"`
	Source     uuid.UUID       `json:"source"`
	Target     uuid.UUID       `json:"target"`
	Type       causal.Type     `json:"causality_type"`
	Strength   causal.Strength `json:"strength"`
	Confidence float64         `json:"confidence"`
	Weight     float64         `json:"weight"`
	TimeLag    float64         `json:"time_lag_minutes"`
}

// BuildEventGraph exports events as nodes and relationships as weighted edges
func (e *Engine) BuildEventGraph() *Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	g := &Graph{
		Nodes: make([]Node, 0, len(e.order)),
		Edges: make([]Edge, 0, len(e.relOrder)),
	}
	for _, id := range e.order {
		ev := e.events[id]
		g.Nodes = append(g.Nodes, Node{
			ID:        ev.ID,
			Type:      ev.Type,
			Severity:  ev.Severity,
			Timestamp: ev.Timestamp,
			Title:     ev.Title,
			Magnitude: ev.Magnitude,
		})
	}
	for _, id := range e.relOrder {
		rel := e.relationships[id]
		g.Edges = append(g.Edges, Edge{
			ID:         rel.ID,
			Source:     rel.CauseID,
			Target:     rel.EffectID,
			Type:       rel.Type,
			Strength:   rel.Strength,
			Confidence: rel.Confidence,
			Weight:     rel.CausalWeight(),
			TimeLag:    rel.TimeLagMinutes,
		})
	}
	return g
}

// Statistics summarizes engine activity and content
type Statistics struct {
	EventsProcessed         int            `json:"events_processed"`
	EventsSkipped           int            `json:"events_skipped"`
	RelationshipsDiscovered int            `json:"relationships_discovered"`
	ManualRelationships     int            `json:"manual_relationships"`
	RulesApplied            int            `json:"rules_applied"`
	RuleFailures            int            `json:"rule_failures"`
	PatternsDetected        int64          `json:"patterns_detected"`
	TotalEvents             int            `json:"total_events"`
	TotalRelationships      int            `json:"total_relationships"`
	RulesLoaded             int            `json:"rules_loaded"`
	EventTypes              map[string]int `json:"event_types"`
	TimeWindowMinutes       int            `json:"time_window_minutes"`
	MinConfidence           float64        `json:"min_confidence"`
}

func (e *Engine) Statistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statisticsLocked()
}

func (e *Engine) statisticsLocked() Statistics {
	types := make(map[string]int)
	for _, ev := range e.events {
		types[ev.Type.String()]++
	}
	return Statistics{
		EventsProcessed:         e.stats.eventsProcessed,
		EventsSkipped:           e.stats.eventsSkipped,
		RelationshipsDiscovered: e.stats.relationshipsDiscovered,
		ManualRelationships:     e.stats.manualRelationships,
		RulesApplied:            e.stats.rulesApplied,
		RuleFailures:            e.stats.ruleFailures,
		PatternsDetected:        e.patternsDetected.Load(),
		TotalEvents:             len(e.events),
		TotalRelationships:      len(e.relationships),
		RulesLoaded:             e.library.Len(),
		EventTypes:              types,
		TimeWindowMinutes:       e.cfg.TimeWindowMinutes,
		MinConfidence:           e.cfg.MinConfidence,
	}
}

// Snapshot is the plain-record form of a session handed to persistence adapters
type Snapshot struct {
	Events        []*event.Event         `json:"events"`
	Relationships []*causal.Relationship `json:"relationships"`
	Config        Config                 `json:"config"`
	TakenAt       time.Time              `json:"taken_at"`
}

// Snapshot copies the engine's events and relationships
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Capture returns a snapshot and the statistics taken under the same read
// lock, so both describe one engine state.
func (e *Engine) Capture() (*Snapshot, Statistics) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked(), e.statisticsLocked()
}

func (e *Engine) snapshotLocked() *Snapshot {
	return &Snapshot{
		Events:        e.eventsLocked(),
		Relationships: e.relationshipsLocked(),
		Config:        e.cfg,
		TakenAt:       e.clock.Now(),
	}
}

// Restore replaces the engine's content with a snapshot without running
// discovery. Event reference sets are rebuilt from the relationships. The
// snapshot is checked in full before anything is swapped in, so a rejected
// snapshot leaves the engine unchanged.
func (e *Engine) Restore(s *Snapshot) error {
	if s == nil {
		return errors.NewValidationError("NIL_SNAPSHOT", "snapshot is required").WithField("snapshot")
	}

	staged := newGraphState()
	for i, ev := range s.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("snapshot event %d: %w", i, err)
		}
		if _, dup := staged.events[ev.ID]; dup {
			continue
		}
		stored := ev.Clone()
		stored.CauseIDs = []uuid.UUID{}
		stored.EffectIDs = []uuid.UUID{}
		staged.insert(stored)
	}
	for i, rel := range s.Relationships {
		if err := rel.Validate(); err != nil {
			return fmt.Errorf("snapshot relationship %d: %w", i, err)
		}
		if _, ok := staged.events[rel.CauseID]; !ok {
			return errors.NewNotFoundError("event").WithID(rel.CauseID).WithField("cause_event_id")
		}
		if _, ok := staged.events[rel.EffectID]; !ok {
			return errors.NewNotFoundError("event").WithID(rel.EffectID).WithField("effect_event_id")
		}
		if _, dup := staged.byKey[rel.Key()]; dup {
			continue
		}
		c := rel.Clone()
		c.ID = rel.Key().ID()
		staged.link(c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphState = staged
	e.stats = counters{}
	e.metrics.SetEngineSize(len(e.events), len(e.relationships))
	return nil
}
