package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
)

// SnapshotStore persists correlation sessions. Load returns a NotFound error
// for an unknown session.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID uuid.UUID, snapshot *correlation.Snapshot) error
	Load(ctx context.Context, sessionID uuid.UUID) (*correlation.Snapshot, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Recorder receives store latency. *metrics.Registry satisfies it.
type Recorder interface {
	RecordStoreOperation(ctx context.Context, store, operation string, durationMS float64, success bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordStoreOperation(context.Context, string, string, float64, bool) {}
