package correlation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Link is a neighbouring event together with the edge that connects it
type Link struct {
	Event        *event.Event         `json:"event"`
	Relationship *causal.Relationship `json:"relationship"`
}

// Direction selects which edges a chain traversal follows
type Direction int

const (
	// Forward follows effects
	Forward Direction = iota
	// Backward follows causes
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// ParseDirection accepts forward/effects and backward/causes
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "effects":
		return Forward, nil
	case "backward", "causes":
		return Backward, nil
	default:
		return 0, errors.NewValidationError("INVALID_DIRECTION",
			fmt.Sprintf("unknown chain direction %q", s)).WithField("direction")
	}
}

// Event returns a copy of a stored event
func (e *Engine) Event(id uuid.UUID) (*event.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ev, ok := e.events[id]
	if !ok {
		return nil, errors.NewNotFoundError("event").WithID(id)
	}
	return ev.Clone(), nil
}

// Relationship returns a copy of a stored relationship
func (e *Engine) Relationship(id uuid.UUID) (*causal.Relationship, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rel, ok := e.relationships[id]
	if !ok {
		return nil, errors.NewNotFoundError("relationship").WithID(id)
	}
	return rel.Clone(), nil
}

// Events returns copies of every stored event in insertion order
func (e *Engine) Events() []*event.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.eventsLocked()
}

func (e *Engine) eventsLocked() []*event.Event {
	out := make([]*event.Event, len(e.order))
	for i, id := range e.order {
		out[i] = e.events[id].Clone()
	}
	return out
}

// Relationships returns copies of every relationship in creation order
func (e *Engine) Relationships() []*causal.Relationship {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.relationshipsLocked()
}

func (e *Engine) relationshipsLocked() []*causal.Relationship {
	out := make([]*causal.Relationship, len(e.relOrder))
	for i, id := range e.relOrder {
		out[i] = e.relationships[id].Clone()
	}
	return out
}

// GetCauses returns the events that caused id, with the connecting edges
func (e *Engine) GetCauses(id uuid.UUID) ([]Link, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.events[id]; !ok {
		return nil, errors.NewNotFoundError("event").WithID(id)
	}
	return e.links(e.incoming[id], Backward), nil
}

// GetEffects returns the events id caused, with the connecting edges
func (e *Engine) GetEffects(id uuid.UUID) ([]Link, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.events[id]; !ok {
		return nil, errors.NewNotFoundError("event").WithID(id)
	}
	return e.links(e.outgoing[id], Forward), nil
}

func (e *Engine) links(relIDs []uuid.UUID, dir Direction) []Link {
	out := make([]Link, 0, len(relIDs))
	for _, relID := range relIDs {
		rel := e.relationships[relID]
		other := rel.EffectID
		if dir == Backward {
			other = rel.CauseID
		}
		out = append(out, Link{Event: e.events[other].Clone(), Relationship: rel.Clone()})
	}
	return out
}

// GetCausalChain walks effects (Forward) or causes (Backward) breadth first
// from id, at most maxDepth hops. The start event comes first and every event
// appears once, so cycles from manual edges terminate. Within one node the
// neighbours are visited by descending relationship confidence, then creation order.
func (e *Engine) GetCausalChain(id uuid.UUID, dir Direction, maxDepth int) ([]*event.Event, error) {
	if dir != Forward && dir != Backward {
		return nil, errors.NewValidationError("INVALID_DIRECTION",
			fmt.Sprintf("unknown chain direction %d", int(dir))).WithField("direction")
	}
	if maxDepth < 0 {
		return nil, errors.NewValidationError("INVALID_DEPTH",
			fmt.Sprintf("max depth must be non-negative, got %d", maxDepth)).WithField("max_depth")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	start, ok := e.events[id]
	if !ok {
		return nil, errors.NewNotFoundError("event").WithID(id)
	}

	visited := map[uuid.UUID]bool{id: true}
	chain := []*event.Event{start.Clone()}
	frontier := []uuid.UUID{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, node := range frontier {
			for _, rel := range e.orderedEdges(node, dir) {
				other := rel.EffectID
				if dir == Backward {
					other = rel.CauseID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				chain = append(chain, e.events[other].Clone())
				next = append(next, other)
			}
		}
		frontier = next
	}
	return chain, nil
}

func (e *Engine) orderedEdges(node uuid.UUID, dir Direction) []*causal.Relationship {
	ids := e.outgoing[node]
	if dir == Backward {
		ids = e.incoming[node]
	}
	rels := make([]*causal.Relationship, len(ids))
	for i, relID := range ids {
		rels[i] = e.relationships[relID]
	}
	SortEdges(rels)
	return rels
}

// SortEdges orders one node's edges the way chain traversal visits them:
// descending confidence, ties kept in the given order. Adjacency lists and
// snapshots hold edges in creation order.
func SortEdges(rels []*causal.Relationship) {
	slices.SortStableFunc(rels, func(a, b *causal.Relationship) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}
