package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/cache"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/fixtures"
)

type storeCall struct {
	operation string
	success   bool
}

type fakeRecorder struct {
	calls []storeCall
}

func (f *fakeRecorder) RecordStoreOperation(_ context.Context, store, operation string, _ float64, success bool) {
	f.calls = append(f.calls, storeCall{operation: operation, success: success})
}

func setupStore(t *testing.T, ttl time.Duration, opts ...cache.Option) (*cache.SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := cache.NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	opts = append(opts, cache.WithLogger(zaptest.NewLogger(t)))
	store, err := cache.NewSessionStore(client, ttl, opts...)
	require.NoError(t, err)
	return store, mr
}

func sampleSnapshot(t *testing.T) *correlation.Snapshot {
	t.Helper()
	engine, err := correlation.NewEngine(correlation.DefaultConfig(), rule.NewLibrary(rule.NewRegistry()),
		correlation.WithClock(&event.MockClock{CurrentTime: fixtures.BaseTime}))
	require.NoError(t, err)

	cause := fixtures.NewEventBuilder(t).WithType(event.TypeMarketingCampaign).AtMinute(0).
		WithAttribute("budget", 50000).Build()
	effect := fixtures.NewEventBuilder(t).WithType(event.TypeCustomerAcquisition).AtMinute(240).Build()
	require.NoError(t, engine.AddEvents([]*event.Event{cause, effect}))
	_, err = engine.AddManualRelationship(cause.ID, effect.ID, causal.TypeContributory, causal.StrengthStrong, 0.75, "")
	require.NoError(t, err)
	return engine.Snapshot()
}

func TestSessionStore_RoundTrip(t *testing.T) {
	rec := &fakeRecorder{}
	store, mr := setupStore(t, time.Hour, cache.WithMetrics(rec))
	ctx := context.Background()

	snap := sampleSnapshot(t)
	id := uuid.New()
	require.NoError(t, store.Save(ctx, id, snap))
	assert.True(t, mr.Exists(cache.SessionKey(id)))
	assert.Equal(t, time.Hour, mr.TTL(cache.SessionKey(id)))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded.Events, 2)
	require.Len(t, loaded.Relationships, 1)
	assert.Equal(t, snap.Events[0].ID, loaded.Events[0].ID)
	assert.Equal(t, event.TypeMarketingCampaign, loaded.Events[0].Type)
	assert.Equal(t, causal.TypeContributory, loaded.Relationships[0].Type)
	assert.InDelta(t, 0.75, loaded.Relationships[0].Confidence, 1e-9)
	assert.Equal(t, snap.Config, loaded.Config)

	restored, err := correlation.NewEngine(loaded.Config, rule.NewLibrary(rule.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(loaded))
	effects, err := restored.GetEffects(snap.Events[0].ID)
	require.NoError(t, err)
	assert.Len(t, effects, 1)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, storeCall{operation: "save", success: true}, rec.calls[0])
	assert.Equal(t, storeCall{operation: "load", success: true}, rec.calls[1])
}

func TestSessionStore_Expiry(t *testing.T) {
	store, mr := setupStore(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Save(ctx, id, sampleSnapshot(t)))

	mr.FastForward(40 * time.Second)
	_, err := store.Load(ctx, id)
	require.NoError(t, err)
	// loading slides the expiry
	ttl, err := store.TTL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(61 * time.Second)
	_, err = store.Load(ctx, id)
	assert.True(t, errors.IsNotFound(err))
}

func TestSessionStore_Errors(t *testing.T) {
	store, mr := setupStore(t, time.Minute)
	ctx := context.Background()

	_, err := store.Load(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))

	err = store.Delete(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))

	_, err = store.TTL(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))

	err = store.Save(ctx, uuid.New(), nil)
	assert.True(t, errors.IsValidation(err))

	corrupt := uuid.New()
	require.NoError(t, mr.Set(cache.SessionKey(corrupt), "{not json"))
	_, err = store.Load(ctx, corrupt)
	require.Error(t, err)
	assert.False(t, errors.IsNotFound(err))

	id := uuid.New()
	require.NoError(t, store.Save(ctx, id, sampleSnapshot(t)))
	require.NoError(t, store.Delete(ctx, id))
	assert.False(t, mr.Exists(cache.SessionKey(id)))
}

func TestNewSessionStore_Validation(t *testing.T) {
	_, err := cache.NewSessionStore(nil, time.Minute)
	assert.True(t, errors.IsValidation(err))

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })
	_, err = cache.NewSessionStore(client, 0)
	assert.True(t, errors.IsValidation(err))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewRedisClient(context.Background(), config.RedisConfig{Addr: addr}, nil)
	assert.Error(t, err)
}
