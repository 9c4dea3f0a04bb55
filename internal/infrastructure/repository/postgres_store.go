package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
)

const storeName = "postgres"

// DB is the subset of *pgxpool.Pool the store needs
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Option func(*PostgresStore)

func WithLogger(logger *zap.Logger) Option {
	return func(s *PostgresStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m Recorder) Option {
	return func(s *PostgresStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// PostgresStore keeps sessions in correlation_sessions and its child tables.
// Each event and relationship is stored whole as JSONB next to the columns
// used for lookups.
type PostgresStore struct {
	db      DB
	logger  *zap.Logger
	metrics Recorder
}

var _ SnapshotStore = (*PostgresStore)(nil)

func NewPostgresStore(db DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, logger: zap.NewNop(), metrics: noopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.RecordStoreOperation(ctx, storeName, operation, float64(time.Since(start).Microseconds())/1000, err == nil)
	switch {
	case err == nil, errors.IsNotFound(err):
	case IsConnectionError(err):
		s.logger.Error("database unreachable", zap.String("operation", operation), zap.Error(err))
	default:
		s.logger.Warn("snapshot store operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

// Save replaces the session's events and relationships in one transaction.
// Stored patterns are kept.
func (s *PostgresStore) Save(ctx context.Context, sessionID uuid.UUID, snap *correlation.Snapshot) (err error) {
	if snap == nil {
		return errors.NewValidationError("NIL_SNAPSHOT", "snapshot is required").WithField("snapshot")
	}
	ctx, span := telemetry.StartStoreSpan(ctx, storeName, "save", "correlation_sessions")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		s.observe(ctx, "save", start, err)
	}()

	cfgJSON, err := json.Marshal(snap.Config)
	if err != nil {
		return fmt.Errorf("marshaling session config: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO correlation_sessions (id, config, taken_at, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id) DO UPDATE
			SET config = EXCLUDED.config, taken_at = EXCLUDED.taken_at, updated_at = NOW()
		`, sessionID, cfgJSON, snap.TakenAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM correlation_relationships WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM correlation_events WHERE session_id = $1`, sessionID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for seq, ev := range snap.Events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
			}
			batch.Queue(`
				INSERT INTO correlation_events (session_id, id, seq, occurred_at, event_type, severity, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (session_id, id) DO UPDATE SET payload = EXCLUDED.payload, seq = EXCLUDED.seq
			`, sessionID, ev.ID, seq, ev.Timestamp, ev.Type.String(), ev.Severity.String(), payload)
		}
		for seq, rel := range snap.Relationships {
			payload, err := json.Marshal(rel)
			if err != nil {
				return fmt.Errorf("marshaling relationship %s: %w", rel.ID, err)
			}
			batch.Queue(`
				INSERT INTO correlation_relationships
					(session_id, id, seq, cause_event_id, effect_event_id, causality_type, confidence, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (session_id, id) DO UPDATE SET payload = EXCLUDED.payload, seq = EXCLUDED.seq
			`, sessionID, rel.ID, seq, rel.CauseID, rel.EffectID, rel.Type.String(), rel.Confidence, payload)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return wrapError(err, "save session")
	}

	s.logger.Debug("session saved",
		zap.String("session_id", sessionID.String()),
		zap.Int("events", len(snap.Events)),
		zap.Int("relationships", len(snap.Relationships)))
	return nil
}

// Load reads a session back with events and relationships in the order the
// engine stored them
func (s *PostgresStore) Load(ctx context.Context, sessionID uuid.UUID) (snap *correlation.Snapshot, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, storeName, "load", "correlation_sessions")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		s.observe(ctx, "load", start, err)
	}()

	snap = &correlation.Snapshot{}
	var cfgJSON []byte
	if err := s.db.QueryRow(ctx,
		`SELECT config, taken_at FROM correlation_sessions WHERE id = $1`, sessionID,
	).Scan(&cfgJSON, &snap.TakenAt); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("session").WithID(sessionID)
		}
		return nil, wrapError(err, "load session")
	}
	if err := json.Unmarshal(cfgJSON, &snap.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling session config: %w", err)
	}

	snap.Events, err = queryPayloads[event.Event](ctx, s.db, `
		SELECT payload FROM correlation_events
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, wrapError(err, "load events")
	}
	snap.Relationships, err = queryPayloads[causal.Relationship](ctx, s.db, `
		SELECT payload FROM correlation_relationships
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, wrapError(err, "load relationships")
	}
	return snap, nil
}

// Delete removes a session and everything stored under it
func (s *PostgresStore) Delete(ctx context.Context, sessionID uuid.UUID) (err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, storeName, "delete", "correlation_sessions")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		s.observe(ctx, "delete", start, err)
	}()

	tag, err := s.db.Exec(ctx, `DELETE FROM correlation_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return wrapError(err, "delete session")
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("session").WithID(sessionID)
	}
	return nil
}

// SavePatterns replaces the stored detection output for a saved session
func (s *PostgresStore) SavePatterns(ctx context.Context, sessionID uuid.UUID, result pattern.Result, detectedAt time.Time) (err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, storeName, "save_patterns", "correlation_patterns")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		s.observe(ctx, "save_patterns", start, err)
	}()

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM correlation_sessions WHERE id = $1)`, sessionID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errors.NewNotFoundError("session").WithID(sessionID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM correlation_patterns WHERE session_id = $1`, sessionID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, kind := range pattern.AllKinds() {
			for _, p := range result[kind] {
				payload, err := json.Marshal(p)
				if err != nil {
					return fmt.Errorf("marshaling pattern %s: %w", p.ID, err)
				}
				batch.Queue(`
					INSERT INTO correlation_patterns
						(session_id, id, kind, support, confidence, payload, detected_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, sessionID, p.ID, kind.String(), p.Support, p.Confidence, payload, detectedAt)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return wrapError(err, "save patterns")
}

// LoadPatterns returns the stored detection output grouped by kind
func (s *PostgresStore) LoadPatterns(ctx context.Context, sessionID uuid.UUID) (result pattern.Result, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, storeName, "load_patterns", "correlation_patterns")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.WithSpanError(span, err)
		s.observe(ctx, "load_patterns", start, err)
	}()

	patterns, err := queryPayloads[pattern.EventPattern](ctx, s.db, `
		SELECT payload FROM correlation_patterns
		WHERE session_id = $1
		ORDER BY kind, support DESC, id
	`, sessionID)
	if err != nil {
		return nil, wrapError(err, "load patterns")
	}
	result = make(pattern.Result)
	for _, p := range patterns {
		result[p.Kind] = append(result[p.Kind], p)
	}
	return result, nil
}

func queryPayloads[T any](ctx context.Context, db DB, sql string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*T, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return nil, err
		}
		v := new(T)
		if err := json.Unmarshal(payload, v); err != nil {
			return nil, fmt.Errorf("unmarshaling stored payload: %w", err)
		}
		return v, nil
	})
}
