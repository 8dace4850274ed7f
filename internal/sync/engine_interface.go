package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/salespilot/core/internal/models"
	"github.com/salespilot/core/internal/sync/conflict"
)

// EngineInterface defines the sync engine surface exposed to UI and host
// code. It allows mocking in tests and alternative implementations.
type EngineInterface interface {
	// QueueOperation appends a mutation to the durable queue.
	QueueOperation(opType models.OperationType, entityType models.EntityType, entityID string, data json.RawMessage) error

	// ProcessSyncQueue runs one flush cycle and always returns a result.
	ProcessSyncQueue(ctx context.Context) *models.SyncResult

	// ForceSync runs a flush cycle on demand.
	ForceSync(ctx context.Context) *models.SyncResult

	// Status returns a point-in-time read of the engine state.
	Status() models.SyncStatus

	// LastSyncTimestamp returns the last completed cycle's timestamp.
	LastSyncTimestamp() (int64, bool)

	// QueueStats returns a breakdown of pending operations.
	QueueStats() map[string]int

	// ResolveConflict reconciles server/local divergence.
	ResolveConflict(op *models.SyncOperation, serverData, localData map[string]interface{}, strategy conflict.Strategy) (map[string]interface{}, error)

	// CleanupOldOperations purges operations older than maxAge.
	CleanupOldOperations(maxAge time.Duration) (int, error)

	// ClearSyncQueue drops every pending operation.
	ClearSyncQueue() error

	// StopPeriodicSync tears down background work.
	StopPeriodicSync()
}
