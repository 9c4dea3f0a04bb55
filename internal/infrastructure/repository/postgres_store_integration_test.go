//go:build integration

package repository_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/repository"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/fixtures"
)

func populatedEngine(t *testing.T) *correlation.Engine {
	t.Helper()
	engine, err := correlation.NewEngine(correlation.DefaultConfig(), rule.NewLibrary(rule.NewRegistry()),
		correlation.WithLogger(zaptest.NewLogger(t)),
		correlation.WithClock(&event.MockClock{CurrentTime: fixtures.BaseTime}))
	require.NoError(t, err)

	cause := fixtures.NewEventBuilder(t).WithType(event.TypePriceChange).AtMinute(0).
		WithAttribute("price_change_pct", -10).Build()
	effect := fixtures.NewEventBuilder(t).WithType(event.TypeDemandChange).AtMinute(90).Build()
	later := fixtures.NewEventBuilder(t).WithType(event.TypeRevenueChange).AtMinute(600).Build()
	require.NoError(t, engine.AddEvents([]*event.Event{cause, effect, later}))

	_, err = engine.AddManualRelationship(cause.ID, effect.ID, causal.TypeDirect, causal.StrengthStrong, 0.8, "analyst")
	require.NoError(t, err)
	_, err = engine.AddManualRelationship(effect.ID, later.ID, causal.TypeIndirect, causal.StrengthModerate, 0.6, "")
	require.NoError(t, err)
	return engine
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	pool := testutil.NewTestPool(t, true)
	store := repository.NewPostgresStore(pool.Pool(), repository.WithLogger(zaptest.NewLogger(t)))
	ctx := testutil.TestContext(t)

	engine := populatedEngine(t)
	snap := engine.Snapshot()
	session := uuid.New()

	require.NoError(t, store.Save(ctx, session, snap))
	// saving again replaces rather than duplicates
	require.NoError(t, store.Save(ctx, session, snap))

	loaded, err := store.Load(ctx, session)
	require.NoError(t, err)
	require.Len(t, loaded.Events, 3)
	require.Len(t, loaded.Relationships, 2)
	assert.Equal(t, snap.Config, loaded.Config)
	assert.True(t, snap.TakenAt.Equal(loaded.TakenAt))
	assert.Equal(t, snap.Events[0].ID, loaded.Events[0].ID)
	assert.Equal(t, event.TypePriceChange, loaded.Events[0].Type)

	restored, err := correlation.NewEngine(loaded.Config, engine.Library())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(loaded))
	assert.Equal(t, 3, restored.Statistics().TotalEvents)
	assert.Equal(t, 2, restored.Statistics().TotalRelationships)

	chain, err := restored.GetCausalChain(snap.Events[0].ID, correlation.Forward, 5)
	require.NoError(t, err)
	assert.Len(t, chain, 3)
}

func TestPostgresStore_NotFound(t *testing.T) {
	pool := testutil.NewTestPool(t, true)
	store := repository.NewPostgresStore(pool.Pool())
	ctx := testutil.TestContext(t)

	_, err := store.Load(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))

	err = store.Delete(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))

	err = store.SavePatterns(ctx, uuid.New(), pattern.Result{}, time.Now())
	assert.True(t, errors.IsNotFound(err))

	err = store.Save(ctx, uuid.New(), nil)
	assert.True(t, errors.IsValidation(err))
}

func TestPostgresStore_PatternsAndDelete(t *testing.T) {
	pool := testutil.NewTestPool(t, true)
	store := repository.NewPostgresStore(pool.Pool())
	ctx := testutil.TestContext(t)

	session := uuid.New()
	require.NoError(t, store.Save(ctx, session, populatedEngine(t).Snapshot()))

	result := pattern.Result{
		pattern.KindSequence: {
			{ID: "seq_1", Kind: pattern.KindSequence, Description: "Sequence: price_change -> demand_change",
				EventTypes:      []event.Type{event.TypePriceChange, event.TypeDemandChange},
				OccurrenceCount: 2, Confidence: 1, Support: 0.5},
		},
		pattern.KindPeriodic: {
			{ID: "per_1", Kind: pattern.KindPeriodic, Description: "Periodic: revenue_change every ~60 min",
				EventTypes: []event.Type{event.TypeRevenueChange}, OccurrenceCount: 4, Confidence: 0.9, Support: 0.4},
		},
	}
	require.NoError(t, store.SavePatterns(ctx, session, result, fixtures.BaseTime))

	loaded, err := store.LoadPatterns(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Total())
	require.Len(t, loaded[pattern.KindSequence], 1)
	assert.Equal(t, "seq_1", loaded[pattern.KindSequence][0].ID)
	assert.Equal(t, []event.Type{event.TypePriceChange, event.TypeDemandChange}, loaded[pattern.KindSequence][0].EventTypes)

	require.NoError(t, store.Delete(ctx, session))
	_, err = store.Load(ctx, session)
	assert.True(t, errors.IsNotFound(err))

	loaded, err = store.LoadPatterns(ctx, session)
	require.NoError(t, err)
	assert.Zero(t, loaded.Total())
}

func TestPostgresStore_PreservesInsertionOrder(t *testing.T) {
	pool := testutil.NewTestPool(t, true)
	store := repository.NewPostgresStore(pool.Pool())
	ctx := testutil.TestContext(t)

	engine, err := correlation.NewEngine(correlation.DefaultConfig(), rule.NewLibrary(rule.NewRegistry()),
		correlation.WithClock(&event.MockClock{CurrentTime: fixtures.BaseTime}))
	require.NoError(t, err)

	// every event shares one timestamp so only insertion order separates them
	root := fixtures.NewEventBuilder(t).WithTitle("root").Build()
	events := []*event.Event{root}
	for _, title := range []string{"e1", "e2", "e3", "e4", "e5", "e6"} {
		events = append(events, fixtures.NewEventBuilder(t).WithTitle(title).Build())
	}
	require.NoError(t, engine.AddEvents(events))
	for _, ev := range events[1:] {
		_, err := engine.AddManualRelationship(root.ID, ev.ID, causal.TypeDirect, causal.StrengthModerate, 0.7, "")
		require.NoError(t, err)
	}

	snap := engine.Snapshot()
	session := uuid.New()
	require.NoError(t, store.Save(ctx, session, snap))

	loaded, err := store.Load(ctx, session)
	require.NoError(t, err)

	ids := func(n int, id func(i int) uuid.UUID) []uuid.UUID {
		out := make([]uuid.UUID, n)
		for i := range out {
			out[i] = id(i)
		}
		return out
	}
	assert.Equal(t,
		ids(len(snap.Events), func(i int) uuid.UUID { return snap.Events[i].ID }),
		ids(len(loaded.Events), func(i int) uuid.UUID { return loaded.Events[i].ID }))
	assert.Equal(t,
		ids(len(snap.Relationships), func(i int) uuid.UUID { return snap.Relationships[i].ID }),
		ids(len(loaded.Relationships), func(i int) uuid.UUID { return loaded.Relationships[i].ID }))

	restored, err := correlation.NewEngine(loaded.Config, engine.Library())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(loaded))

	want, err := engine.GetCausalChain(root.ID, correlation.Forward, 1)
	require.NoError(t, err)
	got, err := restored.GetCausalChain(root.ID, correlation.Forward, 1)
	require.NoError(t, err)
	titles := func(chain []*event.Event) []string {
		out := make([]string, len(chain))
		for i, ev := range chain {
			out[i] = ev.Title
		}
		return out
	}
	assert.Equal(t, []string{"root", "e1", "e2", "e3", "e4", "e5", "e6"}, titles(want))
	assert.Equal(t, titles(want), titles(got))

	relIDs := func(rels []*causal.Relationship) []uuid.UUID {
		return ids(len(rels), func(i int) uuid.UUID { return rels[i].ID })
	}
	assert.Equal(t, relIDs(engine.Relationships()), relIDs(restored.Relationships()))
}
