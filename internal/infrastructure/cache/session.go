package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/repository"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
)

// SessionPrefix namespaces session snapshot keys
const SessionPrefix = "cce:session:"

const storeName = "redis"

// SessionKey returns the key a session snapshot is stored under
func SessionKey(id uuid.UUID) string {
	return SessionPrefix + id.String()
}

type Option func(*SessionStore)

func WithLogger(logger *zap.Logger) Option {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m repository.Recorder) Option {
	return func(s *SessionStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// SessionStore keeps whole session snapshots as JSON with a sliding TTL.
// Every Save and Load pushes the expiry out again.
type SessionStore struct {
	client  redis.Cmdable
	ttl     time.Duration
	logger  *zap.Logger
	metrics repository.Recorder
}

var _ repository.SnapshotStore = (*SessionStore)(nil)

func NewSessionStore(client redis.Cmdable, ttl time.Duration, opts ...Option) (*SessionStore, error) {
	if client == nil {
		return nil, errors.NewValidationError("MISSING_REDIS_CLIENT", "redis client is required").WithField("client")
	}
	if ttl <= 0 {
		return nil, errors.NewValidationError("INVALID_SESSION_TTL",
			fmt.Sprintf("session ttl must be positive, got %s", ttl)).WithField("session_ttl")
	}
	s := &SessionStore{client: client, ttl: ttl, logger: zap.NewNop(), metrics: noopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SessionStore) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.RecordStoreOperation(ctx, storeName, operation, float64(time.Since(start).Microseconds())/1000, err == nil)
	if err != nil && !errors.IsNotFound(err) {
		s.logger.Error("session store operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

func (s *SessionStore) Save(ctx context.Context, sessionID uuid.UUID, snap *correlation.Snapshot) (err error) {
	if snap == nil {
		return errors.NewValidationError("NIL_SNAPSHOT", "snapshot is required").WithField("snapshot")
	}
	start := time.Now()
	defer func() { s.observe(ctx, "save", start, err) }()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.client.Set(ctx, SessionKey(sessionID), payload, s.ttl).Err(); err != nil {
		return errors.NewInternalError("session save failed").WithCause(err)
	}

	s.logger.Debug("session cached",
		zap.String("session_id", sessionID.String()),
		zap.Int("bytes", len(payload)))
	return nil
}

func (s *SessionStore) Load(ctx context.Context, sessionID uuid.UUID) (snap *correlation.Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "load", start, err) }()

	key := SessionKey(sessionID)
	payload, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NewNotFoundError("session").WithID(sessionID)
	}
	if err != nil {
		return nil, errors.NewInternalError("session load failed").WithCause(err)
	}

	snap = &correlation.Snapshot{}
	if err := json.Unmarshal(payload, snap); err != nil {
		return nil, errors.NewInternalError("session payload is corrupt").WithCause(err).WithID(sessionID)
	}
	return snap, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	n, err := s.client.Del(ctx, SessionKey(sessionID)).Result()
	if err != nil {
		return errors.NewInternalError("session delete failed").WithCause(err)
	}
	if n == 0 {
		return errors.NewNotFoundError("session").WithID(sessionID)
	}
	return nil
}

// TTL reports the time left before a session expires
func (s *SessionStore) TTL(ctx context.Context, sessionID uuid.UUID) (time.Duration, error) {
	d, err := s.client.TTL(ctx, SessionKey(sessionID)).Result()
	if err != nil {
		return 0, errors.NewInternalError("session ttl failed").WithCause(err)
	}
	// -2 marks a missing key
	if d == -2*time.Nanosecond || d == -2*time.Second {
		return 0, errors.NewNotFoundError("session").WithID(sessionID)
	}
	return d, nil
}

type noopRecorder struct{}

func (noopRecorder) RecordStoreOperation(context.Context, string, string, float64, bool) {}
