package correlation_test

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/fixtures"
)

type failingCondition struct{}

func (failingCondition) Evaluate(*event.Event, *event.Event) (bool, error) {
	return false, stderrors.New("attribute lookup failed")
}

func priceDemandRule() rule.Rule {
	return rule.Rule{
		Name:           "price_cut_lifts_demand",
		Description:    "Price reductions increase demand",
		CausePattern:   rule.TypePattern(event.TypePriceChange),
		EffectPattern:  rule.TypePattern(event.TypeDemandChange),
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.85,
		Window:         rule.Between(30, 480),
		Condition:      "price_decrease",
		Impact:         "elasticity",
		Priority:       10,
	}
}

func newLibrary(t *testing.T, rules ...rule.Rule) *rule.Library {
	t.Helper()
	reg := rule.NewRegistry()
	require.NoError(t, reg.RegisterCondition("price_decrease", rule.DirectionCondition{Cause: "decrease"}))
	require.NoError(t, reg.RegisterCondition("always_fails", failingCondition{}))
	require.NoError(t, reg.RegisterImpact("elasticity", rule.ScaledAttribute{Side: rule.Cause, Key: "price_change_pct", Factor: 1.5}))
	lib := rule.NewLibrary(reg)
	require.NoError(t, lib.AddRules(rules...))
	return lib
}

func newEngine(t *testing.T, cfg correlation.Config, rules ...rule.Rule) *correlation.Engine {
	t.Helper()
	e, err := correlation.NewEngine(cfg, newLibrary(t, rules...),
		correlation.WithLogger(zaptest.NewLogger(t)),
		correlation.WithClock(&event.MockClock{CurrentTime: fixtures.BaseTime}),
	)
	require.NoError(t, err)
	return e
}

func priceCut(t *testing.T, minute float64) *event.Event {
	return fixtures.NewEventBuilder(t).
		WithType(event.TypePriceChange).
		AtMinute(minute).
		WithDirection("decrease").
		WithAttribute("price_change_pct", -15).
		Build()
}

func demandAt(t *testing.T, minute float64) *event.Event {
	return fixtures.NewEventBuilder(t).WithType(event.TypeDemandChange).AtMinute(minute).Build()
}

func TestNewEngine_Validation(t *testing.T) {
	t.Run("missing library", func(t *testing.T) {
		_, err := correlation.NewEngine(correlation.DefaultConfig(), nil)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("confidence out of range", func(t *testing.T) {
		cfg := correlation.DefaultConfig()
		cfg.MinConfidence = 1.2
		_, err := correlation.NewEngine(cfg, rule.NewLibrary(nil))
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("non-positive window", func(t *testing.T) {
		cfg := correlation.DefaultConfig()
		cfg.TimeWindowMinutes = 0
		_, err := correlation.NewEngine(cfg, rule.NewLibrary(nil))
		require.Error(t, err)
	})
}

func TestEngine_AddEvent_DiscoversRelationship(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig(), priceDemandRule())

	cause := priceCut(t, 0)
	effect := demandAt(t, 45)
	require.NoError(t, e.AddEvent(cause))
	require.NoError(t, e.AddEvent(effect))

	rels := e.Relationships()
	require.Len(t, rels, 1)
	rel := rels[0]
	assert.Equal(t, cause.ID, rel.CauseID)
	assert.Equal(t, effect.ID, rel.EffectID)
	assert.Equal(t, causal.TypeDirect, rel.Type)
	assert.Equal(t, causal.StrengthStrong, rel.Strength)
	assert.InDelta(t, 0.85, rel.Confidence, 1e-9)
	assert.InDelta(t, 45, rel.TimeLagMinutes, 1e-9)
	assert.Equal(t, "rule:price_cut_lifts_demand", rel.DiscoveryMethod)
	assert.Equal(t, "price_cut_lifts_demand", rel.RuleName)
	require.NotNil(t, rel.ImpactMagnitude)
	assert.InDelta(t, -22.5, *rel.ImpactMagnitude, 1e-9)
	assert.Equal(t, causal.DirectionNegative, rel.ImpactDirection)
	assert.Equal(t, fixtures.BaseTime, rel.DiscoveredAt)
	assert.Equal(t, rel.Key().ID(), rel.ID)

	storedCause, err := e.Event(cause.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{rel.ID}, storedCause.EffectIDs)
	storedEffect, err := e.Event(effect.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{rel.ID}, storedEffect.CauseIDs)

	causes, err := e.GetCauses(effect.ID)
	require.NoError(t, err)
	require.Len(t, causes, 1)
	assert.Equal(t, cause.ID, causes[0].Event.ID)

	effects, err := e.GetEffects(cause.ID)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, effect.ID, effects[0].Event.ID)
}

func TestEngine_AddEvent_OrderIndependent(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig(), priceDemandRule())

	// effect arrives first, the pair is found when the cause lands
	require.NoError(t, e.AddEvent(demandAt(t, 45)))
	require.NoError(t, e.AddEvent(priceCut(t, 0)))

	assert.Len(t, e.Relationships(), 1)
}

func TestEngine_AddEvent_OutsideWindows(t *testing.T) {
	tests := []struct {
		name   string
		lag    float64
		window int
	}{
		{name: "beyond rule window", lag: 1000, window: 1440},
		{name: "beyond engine window", lag: 300, window: 120},
		{name: "effect precedes cause", lag: -45, window: 1440},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := correlation.DefaultConfig()
			cfg.TimeWindowMinutes = tt.window
			e := newEngine(t, cfg, priceDemandRule())

			require.NoError(t, e.AddEvents([]*event.Event{priceCut(t, 0), demandAt(t, tt.lag)}))
			assert.Empty(t, e.Relationships())
		})
	}
}

func TestEngine_SimultaneousEventsNotRelated(t *testing.T) {
	anyLag := rule.Rule{
		Name:           "shift_follows_shift",
		CausePattern:   rule.TypePattern(event.TypeMarketShift),
		EffectPattern:  rule.TypePattern(event.TypeMarketShift),
		Type:           causal.TypeContributory,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.7,
		Window:         rule.Window{},
	}
	e := newEngine(t, correlation.DefaultConfig(), anyLag)

	a := fixtures.NewEventBuilder(t).AtMinute(0).Build()
	b := fixtures.NewEventBuilder(t).AtMinute(0).Build()
	require.NoError(t, e.AddEvents([]*event.Event{a, b}))
	assert.Empty(t, e.Relationships())
	assert.Zero(t, e.Rediscover())

	later := fixtures.NewEventBuilder(t).AtMinute(5).Build()
	require.NoError(t, e.AddEvent(later))
	rels := e.Relationships()
	require.Len(t, rels, 2)
	for _, rel := range rels {
		assert.Equal(t, later.ID, rel.EffectID)
		assert.InDelta(t, 5, rel.TimeLagMinutes, 1e-9)
	}
}

func TestEngine_MinConfidenceFilter(t *testing.T) {
	cfg := correlation.DefaultConfig()
	cfg.MinConfidence = 0.9
	e := newEngine(t, cfg, priceDemandRule())

	require.NoError(t, e.AddEvents([]*event.Event{priceCut(t, 0), demandAt(t, 45)}))
	assert.Empty(t, e.Relationships())
}

func TestEngine_AutoDiscoverOff(t *testing.T) {
	cfg := correlation.DefaultConfig()
	cfg.AutoDiscover = false
	e := newEngine(t, cfg, priceDemandRule())

	require.NoError(t, e.AddEvents([]*event.Event{priceCut(t, 0), demandAt(t, 45)}))
	assert.Empty(t, e.Relationships())

	assert.Equal(t, 1, e.Rediscover())
	assert.Len(t, e.Relationships(), 1)
}

func TestEngine_Idempotence(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig(), priceDemandRule())

	cause := priceCut(t, 0)
	require.NoError(t, e.AddEvents([]*event.Event{cause, demandAt(t, 45)}))
	require.Len(t, e.Relationships(), 1)

	t.Run("rediscovery creates nothing new", func(t *testing.T) {
		assert.Zero(t, e.Rediscover())
		assert.Len(t, e.Relationships(), 1)
	})

	t.Run("duplicate event is skipped", func(t *testing.T) {
		require.NoError(t, e.AddEvent(cause))
		stats := e.Statistics()
		assert.Equal(t, 2, stats.EventsProcessed)
		assert.Equal(t, 1, stats.EventsSkipped)
		assert.Equal(t, 2, stats.TotalEvents)
		assert.Equal(t, 1, stats.TotalRelationships)
	})
}

func TestEngine_AddEvent_Invalid(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())

	bad := fixtures.NewEventBuilder(t).Build()
	bad.Confidence = 1.5

	err := e.AddEvent(bad)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, e.Events())

	err = e.AddEvents([]*event.Event{fixtures.NewEventBuilder(t).Build(), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch index 1")
	assert.Len(t, e.Events(), 1)
}

func TestEngine_RuleFailureIsolation(t *testing.T) {
	failing := priceDemandRule()
	failing.Name = "broken_rule"
	failing.Condition = "always_fails"
	failing.Priority = 20

	e := newEngine(t, correlation.DefaultConfig(), failing, priceDemandRule())

	require.NoError(t, e.AddEvents([]*event.Event{priceCut(t, 0), demandAt(t, 45)}))

	rels := e.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, "price_cut_lifts_demand", rels[0].RuleName)
	assert.Equal(t, 1, e.Statistics().RuleFailures)
}

func TestEngine_AddManualRelationship(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())

	a := fixtures.NewEventBuilder(t).AtMinute(0).Build()
	b := fixtures.NewEventBuilder(t).AtMinute(30).Build()
	require.NoError(t, e.AddEvents([]*event.Event{a, b}))

	t.Run("creates edge with signed lag", func(t *testing.T) {
		rel, err := e.AddManualRelationship(b.ID, a.ID, causal.TypeIndirect, causal.StrengthWeak, 0.3, "analyst note")
		require.NoError(t, err)
		assert.True(t, rel.IsManual())
		assert.InDelta(t, -30, rel.TimeLagMinutes, 1e-9)
		assert.Equal(t, "analyst note", rel.Notes)
		assert.Equal(t, 1, e.Statistics().ManualRelationships)
	})

	t.Run("duplicate key conflicts", func(t *testing.T) {
		_, err := e.AddManualRelationship(b.ID, a.ID, causal.TypeIndirect, causal.StrengthStrong, 0.9, "")
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err))
		id, ok := errors.Detail(err, "id")
		require.True(t, ok)
		assert.Equal(t, causal.Key{CauseID: b.ID, EffectID: a.ID, Type: causal.TypeIndirect}.ID().String(), id)
	})

	t.Run("different type is a new edge", func(t *testing.T) {
		_, err := e.AddManualRelationship(b.ID, a.ID, causal.TypeDirect, causal.StrengthStrong, 0.9, "")
		require.NoError(t, err)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := e.AddManualRelationship(uuid.New(), a.ID, causal.TypeDirect, causal.StrengthStrong, 0.9, "")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
		field, _ := errors.Detail(err, "field")
		assert.Equal(t, "cause_event_id", field)
	})

	t.Run("invalid confidence", func(t *testing.T) {
		_, err := e.AddManualRelationship(a.ID, b.ID, causal.TypeDirect, causal.StrengthStrong, 1.1, "")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestEngine_GetCausalChain(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())

	a := fixtures.NewEventBuilder(t).WithTitle("a").AtMinute(0).Build()
	b := fixtures.NewEventBuilder(t).WithTitle("b").AtMinute(10).Build()
	c := fixtures.NewEventBuilder(t).WithTitle("c").AtMinute(20).Build()
	d := fixtures.NewEventBuilder(t).WithTitle("d").AtMinute(30).Build()
	require.NoError(t, e.AddEvents([]*event.Event{a, b, c, d}))

	manual := func(cause, effect *event.Event, confidence float64) {
		_, err := e.AddManualRelationship(cause.ID, effect.ID, causal.TypeDirect, causal.StrengthModerate, confidence, "")
		require.NoError(t, err)
	}
	manual(a, b, 0.5)
	manual(a, c, 0.9)
	manual(b, d, 0.7)
	manual(d, a, 0.7)

	titles := func(events []*event.Event) []string {
		out := make([]string, len(events))
		for i, ev := range events {
			out[i] = ev.Title
		}
		return out
	}

	tests := []struct {
		name  string
		start *event.Event
		dir   correlation.Direction
		depth int
		want  []string
	}{
		{name: "depth zero is the start", start: a, dir: correlation.Forward, depth: 0, want: []string{"a"}},
		{name: "one hop by confidence", start: a, dir: correlation.Forward, depth: 1, want: []string{"a", "c", "b"}},
		{name: "cycle terminates", start: a, dir: correlation.Forward, depth: 10, want: []string{"a", "c", "b", "d"}},
		{name: "backward", start: d, dir: correlation.Backward, depth: 2, want: []string{"d", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := e.GetCausalChain(tt.start.ID, tt.dir, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(chain))
		})
	}

	t.Run("errors", func(t *testing.T) {
		_, err := e.GetCausalChain(uuid.New(), correlation.Forward, 3)
		assert.True(t, errors.IsNotFound(err))

		_, err = e.GetCausalChain(a.ID, correlation.Forward, -1)
		assert.True(t, errors.IsValidation(err))

		_, err = e.GetCausalChain(a.ID, correlation.Direction(7), 1)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]correlation.Direction{
		"forward": correlation.Forward, "effects": correlation.Forward,
		"Backward": correlation.Backward, "causes": correlation.Backward,
	} {
		got, err := correlation.ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := correlation.ParseDirection("sideways")
	assert.True(t, errors.IsValidation(err))
}

func TestEngine_QueriesUnknownEvent(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())

	_, err := e.GetCauses(uuid.New())
	assert.True(t, errors.IsNotFound(err))
	_, err = e.GetEffects(uuid.New())
	assert.True(t, errors.IsNotFound(err))
	_, err = e.Event(uuid.New())
	assert.True(t, errors.IsNotFound(err))
	_, err = e.Relationship(uuid.New())
	assert.True(t, errors.IsNotFound(err))
}

func TestEngine_ReadsAreCopies(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())
	ev := fixtures.NewEventBuilder(t).WithAttribute("region", "emea").Build()
	require.NoError(t, e.AddEvent(ev))

	// the caller's event is not retained
	ev.Attributes["region"] = "apac"
	got, err := e.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "emea", got.Attributes["region"])

	got.Attributes["region"] = "latam"
	again, err := e.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "emea", again.Attributes["region"])
}

func TestEngine_SnapshotRestore(t *testing.T) {
	src := newEngine(t, correlation.DefaultConfig(), priceDemandRule())
	cause, effect := priceCut(t, 0), demandAt(t, 45)
	require.NoError(t, src.AddEvents([]*event.Event{cause, effect}))
	_, err := src.AddManualRelationship(effect.ID, cause.ID, causal.TypeContributory, causal.StrengthWeak, 0.4, "")
	require.NoError(t, err)

	snap := src.Snapshot()
	require.Len(t, snap.Events, 2)
	require.Len(t, snap.Relationships, 2)
	assert.Equal(t, fixtures.BaseTime, snap.TakenAt)

	dst := newEngine(t, correlation.DefaultConfig(), priceDemandRule())
	require.NoError(t, dst.Restore(snap))

	assert.ElementsMatch(t, src.Relationships(), dst.Relationships())
	causes, err := dst.GetCauses(effect.ID)
	require.NoError(t, err)
	require.Len(t, causes, 1)
	assert.Equal(t, cause.ID, causes[0].Event.ID)
	assert.Zero(t, dst.Rediscover())

	rejected := []struct {
		name    string
		mutate  func(s *correlation.Snapshot)
		checkFn func(error) bool
	}{
		{
			name:    "dangling relationship",
			mutate:  func(s *correlation.Snapshot) { s.Events = s.Events[:1] },
			checkFn: errors.IsNotFound,
		},
		{
			name:    "nil relationship entry",
			mutate:  func(s *correlation.Snapshot) { s.Relationships = append(s.Relationships, nil) },
			checkFn: errors.IsValidation,
		},
		{
			name:    "confidence out of range",
			mutate:  func(s *correlation.Snapshot) { s.Relationships[0].Confidence = 1.4 },
			checkFn: errors.IsValidation,
		},
		{
			name:    "rule edge with negative lag",
			mutate:  func(s *correlation.Snapshot) { s.Relationships[0].TimeLagMinutes = -5 },
			checkFn: errors.IsValidation,
		},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			bad := src.Snapshot()
			tt.mutate(bad)

			err := dst.Restore(bad)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), err.Error())

			// a rejected snapshot leaves the previous content in place
			assert.Len(t, dst.Events(), 2)
			assert.ElementsMatch(t, src.Relationships(), dst.Relationships())
			chain, err := dst.GetCausalChain(cause.ID, correlation.Forward, 1)
			require.NoError(t, err)
			assert.Len(t, chain, 2)
		})
	}

	t.Run("nil snapshot", func(t *testing.T) {
		assert.True(t, errors.IsValidation(dst.Restore(nil)))
		assert.Len(t, dst.Events(), 2)
	})
}

func TestEngine_StatisticsAndClear(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig(), priceDemandRule())
	require.NoError(t, e.AddEvents([]*event.Event{priceCut(t, 0), demandAt(t, 45), demandAt(t, 90)}))

	stats := e.Statistics()
	assert.Equal(t, 3, stats.EventsProcessed)
	assert.Equal(t, 2, stats.RelationshipsDiscovered)
	assert.Equal(t, 2, stats.RulesApplied)
	assert.Equal(t, 1, stats.RulesLoaded)
	assert.Equal(t, map[string]int{"price_change": 1, "demand_change": 2}, stats.EventTypes)
	assert.Equal(t, 1440, stats.TimeWindowMinutes)

	graph := e.BuildEventGraph()
	assert.Len(t, graph.Nodes, 3)
	require.Len(t, graph.Edges, 2)
	assert.InDelta(t, 0.75*0.85, graph.Edges[0].Weight, 1e-9)

	e.Clear()
	stats = e.Statistics()
	assert.Zero(t, stats.TotalEvents)
	assert.Zero(t, stats.TotalRelationships)
	assert.Zero(t, stats.EventsProcessed)
	assert.Equal(t, 1, stats.RulesLoaded)
	assert.Empty(t, e.Events())
}

func TestEngine_DetectPatterns(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig())
	require.NoError(t, e.AddEvents(fixtures.Series(t, event.TypeRevenueChange, 0, 60, 120, 180)))

	res := e.DetectPatterns()
	require.Len(t, res[pattern.KindPeriodic], 1)
	assert.Equal(t, int64(res.Total()), e.Statistics().PatternsDetected)
}

func TestEngine_ConcurrentReadersWithWriter(t *testing.T) {
	e := newEngine(t, correlation.DefaultConfig(), priceDemandRule())
	first := priceCut(t, 0)
	require.NoError(t, e.AddEvent(first))

	numEvents := 16
	numReaders := 4
	done := make(chan struct{})
	errChan := make(chan error, numReaders+1)

	var readers sync.WaitGroup
	for i := 0; i < numReaders; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				if _, err := e.GetCausalChain(first.ID, correlation.Forward, 5); err != nil {
					errChan <- err
					return
				}
				e.DetectPatterns()
				stats := e.Statistics()
				if stats.TotalEvents < 1 || stats.TotalEvents > numEvents+1 {
					errChan <- fmt.Errorf("statistics saw %d events", stats.TotalEvents)
					return
				}

				snap := e.Snapshot()
				ids := make(map[uuid.UUID]bool, len(snap.Events))
				for _, ev := range snap.Events {
					ids[ev.ID] = true
				}
				for _, rel := range snap.Relationships {
					if !ids[rel.CauseID] || !ids[rel.EffectID] {
						errChan <- fmt.Errorf("snapshot relationship %s has an endpoint outside the snapshot", rel.ID)
						return
					}
				}
			}
		}()
	}

	batch := make([]*event.Event, 0, numEvents)
	for i := 1; i <= numEvents; i++ {
		if i%2 == 0 {
			batch = append(batch, priceCut(t, float64(30*i)))
		} else {
			batch = append(batch, demandAt(t, float64(30*i)))
		}
	}

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for _, ev := range batch {
			if err := e.AddEvent(ev); err != nil {
				errChan <- err
				return
			}
		}
	}()

	writer.Wait()
	close(done)
	readers.Wait()
	close(errChan)

	for err := range errChan {
		require.NoError(t, err)
	}

	stats := e.Statistics()
	assert.Equal(t, numEvents+1, stats.TotalEvents)
	assert.Positive(t, stats.TotalRelationships)
	chain, err := e.GetCausalChain(first.ID, correlation.Forward, 1)
	require.NoError(t, err)
	assert.Greater(t, len(chain), 1)
}
