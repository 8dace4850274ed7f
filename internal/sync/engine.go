// Package sync provides the offline-first synchronization engine: a durable
// FIFO queue of pending mutations flushed opportunistically and periodically
// against the remote entity store, with bounded retries and conflict
// resolution.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	gosync "sync"
	"time"

	apperrors "github.com/salespilot/core/internal/errors"
	"github.com/salespilot/core/internal/logging"
	"github.com/salespilot/core/internal/models"
	"github.com/salespilot/core/internal/sync/conflict"
)

// Storage keys. The whole queue is serialized under one key so every
// mutation is a single overwrite, never a partial write.
const (
	queueKey    = "sync_queue"
	lastSyncKey = "last_sync"
)

const (
	defaultFlushInterval = 30 * time.Second
	defaultMaxRetries    = 3
	defaultCleanupMaxAge = 7 * 24 * time.Hour
	flushTimeout         = 5 * time.Minute
)

// ConflictRecorder persists resolved conflicts for user awareness.
type ConflictRecorder interface {
	RecordConflict(entry *models.ConflictLog) error
}

// Config holds engine construction parameters. Storage is required; all
// other collaborators have working defaults.
type Config struct {
	Storage      Storage
	Handlers     map[models.EntityType]EntityHandler
	Connectivity ConnectivityObserver
	Clock        Clock
	Events       EventHandler
	Conflicts    ConflictRecorder

	// FlushInterval is the periodic flush cadence. Zero selects the
	// 30-second default; a negative value disables the periodic loop.
	FlushInterval time.Duration

	// MaxRetries is the retry budget applied to new operations.
	MaxRetries int
}

// Engine owns the durable queue of pending remote mutations and drives
// their eventual application to the entity store. The host application
// constructs exactly one Engine and hands it to call sites.
type Engine struct {
	storage Storage

	handlersMu gosync.RWMutex
	handlers   map[models.EntityType]EntityHandler

	conn     ConnectivityObserver
	clock    Clock
	events   EventHandler
	recorder ConflictRecorder

	flushInterval time.Duration
	maxRetries    int

	// queueMu serializes every read-modify-write of the persisted queue.
	queueMu gosync.Mutex

	// stateMu guards the online flag and the re-entrancy guard.
	stateMu    gosync.Mutex
	isOnline   bool
	inProgress bool

	stopCh      chan struct{}
	stopOnce    gosync.Once
	wg          gosync.WaitGroup
	unsubscribe func()
}

// New constructs an Engine, subscribes to connectivity transitions and
// starts the periodic flush loop.
func New(cfg Config) *Engine {
	e := &Engine{
		storage:       cfg.Storage,
		handlers:      cfg.Handlers,
		conn:          cfg.Connectivity,
		clock:         cfg.Clock,
		events:        cfg.Events,
		recorder:      cfg.Conflicts,
		flushInterval: cfg.FlushInterval,
		maxRetries:    cfg.MaxRetries,
		stopCh:        make(chan struct{}),
	}

	if e.handlers == nil {
		e.handlers = make(map[models.EntityType]EntityHandler)
	}
	if e.conn == nil {
		e.conn = alwaysOnline{}
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.flushInterval == 0 {
		e.flushInterval = defaultFlushInterval
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}

	e.isOnline = e.conn.Online()
	e.unsubscribe = e.conn.Subscribe(e.onConnectivityChange)

	if e.flushInterval > 0 {
		e.wg.Add(1)
		go e.periodicFlushLoop()
	}

	return e
}

// RegisterHandler adds or replaces the handler for an entity domain.
func (e *Engine) RegisterHandler(entity models.EntityType, handler EntityHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[entity] = handler
}

// QueueOperation appends a mutation to the durable queue. Data is required
// for create/update and ignored for delete. If the engine is online and no
// flush is running, a flush cycle is triggered in the background; the call
// itself never waits on it. A persistence failure is returned to the caller
// so the mutation is never silently lost.
func (e *Engine) QueueOperation(opType models.OperationType, entityType models.EntityType, entityID string, data json.RawMessage) error {
	if !opType.Valid() {
		return apperrors.New(apperrors.ErrValidation, "unsupported operation type: "+string(opType))
	}
	if !entityType.Valid() {
		return apperrors.New(apperrors.ErrValidation, "unsupported entity type: "+string(entityType))
	}
	if entityID == "" {
		return apperrors.New(apperrors.ErrValidation, "entity id must not be empty")
	}
	if opType != models.OperationDelete && len(data) == 0 {
		return apperrors.New(apperrors.ErrValidation, "data is required for create/update operations")
	}
	if opType == models.OperationDelete {
		data = nil
	}

	op := models.NewSyncOperation(opType, entityType, entityID, data, e.clock.Now(), e.maxRetries)

	e.queueMu.Lock()
	queue := e.loadQueue()
	queue = append(queue, op)
	err := e.saveQueue(queue)
	size := len(queue)
	e.queueMu.Unlock()

	if err != nil {
		logging.ErrorWithCode("failed to persist queued operation", string(apperrors.ErrSyncPersistence), err,
			map[string]interface{}{"operation_id": op.ID})
		return apperrors.Wrap(apperrors.ErrSyncPersistence, "failed to persist queued operation", err)
	}

	logging.Debug("operation queued",
		map[string]interface{}{
			"operation_id": op.ID,
			"entity_type":  string(entityType),
			"operation":    string(opType),
			"queue_size":   size,
		})

	e.emitEvent(EventSyncQueued, map[string]interface{}{
		"operation_id": op.ID,
		"queue_size":   size,
	})

	if e.onlineAndIdle() {
		e.triggerFlush()
	}

	return nil
}

// ProcessSyncQueue runs one flush cycle: every queued operation is attempted
// in FIFO order, successes are removed, failures are retried up to their
// budget, exhausted operations are removed and surfaced in the result. The
// method never returns an error; precondition refusals come back as a
// result with Success=false.
func (e *Engine) ProcessSyncQueue(ctx context.Context) *models.SyncResult {
	e.stateMu.Lock()
	if e.inProgress {
		e.stateMu.Unlock()
		return &models.SyncResult{
			Success: false,
			Errors:  []string{"sync already in progress"},
		}
	}
	if !e.isOnline {
		e.stateMu.Unlock()
		return &models.SyncResult{
			Success: false,
			Errors:  []string{"device is offline"},
		}
	}
	e.inProgress = true
	e.stateMu.Unlock()

	defer func() {
		e.stateMu.Lock()
		e.inProgress = false
		e.stateMu.Unlock()
	}()

	start := e.clock.Now()

	e.queueMu.Lock()
	queue := e.loadQueue()
	e.queueMu.Unlock()

	e.emitEvent(EventSyncStarted, map[string]interface{}{"queue_size": len(queue)})

	result := &models.SyncResult{}
	removed := make(map[string]bool)
	retried := make(map[string]int)

	for _, op := range queue {
		err := e.processOperation(ctx, op)
		if err == nil {
			removed[op.ID] = true
			result.Synced++
			continue
		}

		op.RetryCount++
		if op.RetryCount > op.MaxRetries {
			// Terminal failure: removed from the queue and surfaced,
			// never retried again.
			removed[op.ID] = true
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", op.ID, err))
			logging.ErrorWithCode("sync operation failed permanently", string(apperrors.ErrSyncFailed), err,
				map[string]interface{}{
					"operation_id": op.ID,
					"attempts":     op.RetryCount,
				})
		} else {
			retried[op.ID] = op.RetryCount
			logging.Warn("sync operation failed, will retry",
				map[string]interface{}{
					"operation_id": op.ID,
					"retry_count":  op.RetryCount,
					"max_retries":  op.MaxRetries,
					"error":        err.Error(),
				})
		}
	}

	// Persist the surviving queue in one write. Operations queued while
	// the cycle ran are reloaded and kept.
	e.queueMu.Lock()
	current := e.loadQueue()
	remaining := make([]*models.SyncOperation, 0, len(current))
	for _, op := range current {
		if removed[op.ID] {
			continue
		}
		if count, ok := retried[op.ID]; ok {
			op.RetryCount = count
		}
		remaining = append(remaining, op)
	}
	if err := e.saveQueue(remaining); err != nil {
		logging.ErrorWithCode("failed to persist queue after flush", string(apperrors.ErrSyncPersistence), err, nil)
		result.Errors = append(result.Errors, "failed to persist queue: "+err.Error())
	}
	e.queueMu.Unlock()

	// The last-sync timestamp advances after every cycle, partial failure
	// included.
	e.setLastSync(e.clock.Now())

	result.Success = len(result.Errors) == 0

	logging.Info("sync cycle completed",
		map[string]interface{}{
			"synced":      result.Synced,
			"failed":      result.Failed,
			"remaining":   len(remaining),
			"duration_ms": e.clock.Now().Sub(start).Milliseconds(),
		})

	if result.Success {
		e.emitEvent(EventSyncCompleted, map[string]interface{}{
			"synced": result.Synced,
			"failed": result.Failed,
		})
	} else {
		e.emitEvent(EventSyncFailed, map[string]interface{}{
			"synced": result.Synced,
			"failed": result.Failed,
			"errors": result.Errors,
		})
	}

	return result
}

// ForceSync runs a flush cycle on demand, subject to the same online and
// re-entrancy preconditions as the background cycles.
func (e *Engine) ForceSync(ctx context.Context) *models.SyncResult {
	return e.ProcessSyncQueue(ctx)
}

// processOperation routes one operation to its registered entity handler.
func (e *Engine) processOperation(ctx context.Context, op *models.SyncOperation) error {
	e.handlersMu.RLock()
	handler, ok := e.handlers[op.EntityType]
	e.handlersMu.RUnlock()
	if !ok {
		return apperrors.New(apperrors.ErrSyncUnknownEntity, "no handler registered for entity type: "+string(op.EntityType))
	}
	return dispatch(ctx, handler, op)
}

// Status returns a point-in-time read of the engine state. The queue size
// is recomputed from storage on every call.
func (e *Engine) Status() models.SyncStatus {
	e.queueMu.Lock()
	size := len(e.loadQueue())
	e.queueMu.Unlock()

	e.stateMu.Lock()
	online := e.isOnline
	inProgress := e.inProgress
	e.stateMu.Unlock()

	lastSync, _ := e.LastSyncTimestamp()

	return models.SyncStatus{
		IsOnline:       online,
		SyncInProgress: inProgress,
		QueueSize:      size,
		LastSyncAt:     lastSync,
	}
}

// LastSyncTimestamp returns the epoch-millisecond time of the last completed
// flush cycle. The second return value is false when no cycle has completed.
func (e *Engine) LastSyncTimestamp() (int64, bool) {
	value, ok, err := e.storage.Get(lastSyncKey)
	if err != nil {
		logging.Error("failed to read last-sync timestamp", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		logging.Error("corrupt last-sync timestamp", err)
		return 0, false
	}
	return ts, true
}

// QueueStats returns a breakdown of pending operations by entity type and
// operation type, plus the total.
func (e *Engine) QueueStats() map[string]int {
	e.queueMu.Lock()
	queue := e.loadQueue()
	e.queueMu.Unlock()

	stats := map[string]int{"total": len(queue)}
	for _, op := range queue {
		stats[string(op.EntityType)]++
		stats[string(op.Type)]++
	}
	return stats
}

// ResolveConflict reconciles divergent server and local versions of an
// entity using the given strategy and records the resolution for user
// awareness. The manual strategy always fails; it must never silently fall
// back to another strategy.
func (e *Engine) ResolveConflict(op *models.SyncOperation, serverData, localData map[string]interface{}, strategy conflict.Strategy) (map[string]interface{}, error) {
	merged, entry, err := conflict.Resolve(op, serverData, localData, strategy, e.clock.Now())
	if err != nil {
		return nil, err
	}

	if e.recorder != nil && entry != nil {
		if recErr := e.recorder.RecordConflict(entry); recErr != nil {
			logging.Error("failed to record conflict resolution", recErr,
				map[string]interface{}{"entity_id": entry.EntityID})
		}
	}

	return merged, nil
}

// CleanupOldOperations removes queued operations older than maxAge,
// independent of retry state. Zero or negative maxAge selects the 7-day
// default. Returns the number of purged operations.
func (e *Engine) CleanupOldOperations(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = defaultCleanupMaxAge
	}
	now := e.clock.Now()

	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	queue := e.loadQueue()
	kept := make([]*models.SyncOperation, 0, len(queue))
	for _, op := range queue {
		if op.Age(now) > maxAge {
			continue
		}
		kept = append(kept, op)
	}

	purged := len(queue) - len(kept)
	if purged == 0 {
		return 0, nil
	}

	if err := e.saveQueue(kept); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSyncPersistence, "failed to persist queue after cleanup", err)
	}

	logging.Info("purged stale sync operations",
		map[string]interface{}{
			"purged":      purged,
			"max_age_hrs": maxAge.Hours(),
		})
	return purged, nil
}

// ClearSyncQueue drops every pending operation. Destructive; operator and
// debug use only.
func (e *Engine) ClearSyncQueue() error {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	if err := e.storage.Delete(queueKey); err != nil {
		return apperrors.Wrap(apperrors.ErrSyncPersistence, "failed to clear sync queue", err)
	}
	logging.Warn("sync queue cleared")
	return nil
}

// StopPeriodicSync tears down the periodic loop and the connectivity
// subscription. Safe to call more than once.
func (e *Engine) StopPeriodicSync() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		logging.Info("periodic sync stopped")
	})
}

// periodicFlushLoop triggers a flush on every tick while online and idle.
func (e *Engine) periodicFlushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.onlineAndIdle() {
				e.triggerFlush()
			}
		}
	}
}

// onConnectivityChange flips the online flag and flushes on the transition
// to online.
func (e *Engine) onConnectivityChange(online bool) {
	e.stateMu.Lock()
	was := e.isOnline
	e.isOnline = online
	e.stateMu.Unlock()

	if was != online {
		logging.Info("connectivity changed",
			map[string]interface{}{
				"was_online": was,
				"is_online":  online,
			})
	}

	if online && !was {
		e.triggerFlush()
	}
}

// onlineAndIdle reports whether a background flush may start.
func (e *Engine) onlineAndIdle() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.isOnline && !e.inProgress
}

// triggerFlush starts a fire-and-forget flush cycle.
func (e *Engine) triggerFlush() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		e.ProcessSyncQueue(ctx)
	}()
}

// loadQueue reads the persisted queue. A storage or decode failure is
// logged and yields an empty queue; the engine stays available at the cost
// of strict durability in that one edge case.
func (e *Engine) loadQueue() []*models.SyncOperation {
	value, ok, err := e.storage.Get(queueKey)
	if err != nil {
		logging.ErrorWithCode("failed to load sync queue", string(apperrors.ErrSyncPersistence), err, nil)
		return nil
	}
	if !ok {
		return nil
	}

	var queue []*models.SyncOperation
	if err := json.Unmarshal(value, &queue); err != nil {
		logging.ErrorWithCode("corrupt sync queue, starting empty", string(apperrors.ErrSyncPersistence), err, nil)
		return nil
	}
	return queue
}

// saveQueue overwrites the persisted queue in one write.
func (e *Engine) saveQueue(queue []*models.SyncOperation) error {
	if queue == nil {
		queue = []*models.SyncOperation{}
	}
	value, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	return e.storage.Set(queueKey, value)
}

// setLastSync persists the last-sync timestamp.
func (e *Engine) setLastSync(now time.Time) {
	value := strconv.FormatInt(now.UnixMilli(), 10)
	if err := e.storage.Set(lastSyncKey, []byte(value)); err != nil {
		logging.Error("failed to persist last-sync timestamp", err)
	}
}

// emitEvent delivers a lifecycle event to the configured handler.
func (e *Engine) emitEvent(eventType EventType, data map[string]interface{}) {
	if e.events == nil {
		return
	}
	e.events.OnSyncEvent(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: e.clock.Now().UnixMilli(),
	})
}
