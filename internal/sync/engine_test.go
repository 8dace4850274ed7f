// Package sync tests for the sync engine.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	apperrors "github.com/salespilot/core/internal/errors"
	"github.com/salespilot/core/internal/models"
	"github.com/salespilot/core/internal/sync/conflict"
)

// fakeClock is a controllable Clock.
type fakeClock struct {
	mu  gosync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedHandler records dispatches in order and fails on demand.
type scriptedHandler struct {
	mu    gosync.Mutex
	calls []string
	fail  func(op *models.SyncOperation) error
	gate  chan struct{} // when set, dispatches wait until it closes
}

func (h *scriptedHandler) Create(ctx context.Context, op *models.SyncOperation) error {
	return h.record("create", op)
}

func (h *scriptedHandler) Update(ctx context.Context, op *models.SyncOperation) error {
	return h.record("update", op)
}

func (h *scriptedHandler) Delete(ctx context.Context, op *models.SyncOperation) error {
	return h.record("delete", op)
}

func (h *scriptedHandler) record(kind string, op *models.SyncOperation) error {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	h.calls = append(h.calls, fmt.Sprintf("%s %s", kind, op.EntityID))
	fail := h.fail
	h.mu.Unlock()

	if fail != nil {
		return fail(op)
	}
	return nil
}

func (h *scriptedHandler) callList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

func (h *scriptedHandler) attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// recordingEvents collects emitted lifecycle events.
type recordingEvents struct {
	mu     gosync.Mutex
	events []Event
}

func (r *recordingEvents) OnSyncEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// failingStorage rejects writes, for persistence-failure paths.
type failingStorage struct {
	MemoryStorage
}

func (f *failingStorage) Set(key string, value []byte) error {
	return errors.New("disk full")
}

// testEngine bundles an engine with its collaborators.
type testEngine struct {
	engine  *Engine
	storage *MemoryStorage
	conn    *ManualConnectivity
	clock   *fakeClock
	handler *scriptedHandler
	events  *recordingEvents
}

// newTestEngine builds an engine with the periodic loop disabled so tests
// control every flush cycle.
func newTestEngine(t *testing.T, online bool) *testEngine {
	t.Helper()

	te := &testEngine{
		storage: NewMemoryStorage(),
		conn:    NewManualConnectivity(online),
		clock:   newFakeClock(),
		handler: &scriptedHandler{},
		events:  &recordingEvents{},
	}

	te.engine = New(Config{
		Storage: te.storage,
		Handlers: map[models.EntityType]EntityHandler{
			models.EntityContact:    te.handler,
			models.EntityFile:       NewStubHandler(models.EntityFile),
			models.EntityAutomation: NewStubHandler(models.EntityAutomation),
		},
		Connectivity:  te.conn,
		Clock:         te.clock,
		Events:        te.events,
		FlushInterval: -1,
		MaxRetries:    3,
	})
	t.Cleanup(te.engine.StopPeriodicSync)
	return te
}

// seedQueue writes operations straight into storage, bypassing the
// auto-flush trigger.
func (te *testEngine) seedQueue(t *testing.T, ops ...*models.SyncOperation) {
	t.Helper()
	value, err := json.Marshal(ops)
	if err != nil {
		t.Fatalf("failed to marshal seed queue: %v", err)
	}
	if err := te.storage.Set(queueKey, value); err != nil {
		t.Fatalf("failed to seed queue: %v", err)
	}
}

// waitFor polls until cond holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestFIFOOrdering verifies operations queued offline are dispatched in
// insertion order once the device comes online.
func TestFIFOOrdering(t *testing.T) {
	te := newTestEngine(t, false)

	payload := json.RawMessage(`{"name":"x"}`)
	if err := te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1", payload); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	if err := te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-2", payload); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	if err := te.engine.QueueOperation(models.OperationUpdate, models.EntityContact, "c-1", payload); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}

	if got := te.handler.attempts(); got != 0 {
		t.Fatalf("dispatches while offline = %d, want 0", got)
	}
	if size := te.engine.Status().QueueSize; size != 3 {
		t.Fatalf("QueueSize = %d, want 3", size)
	}

	// The transition to online triggers a background flush.
	te.conn.SetOnline(true)
	waitFor(t, "queue drained", func() bool {
		status := te.engine.Status()
		return status.QueueSize == 0 && !status.SyncInProgress
	})

	want := []string{"create c-1", "create c-2", "update c-1"}
	got := te.handler.callList()
	if len(got) != len(want) {
		t.Fatalf("dispatches = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatch[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestRetryCeiling verifies a permanently failing operation is attempted
// maxRetries+1 times, then surfaced once and removed.
func TestRetryCeiling(t *testing.T) {
	te := newTestEngine(t, true)
	te.handler.fail = func(op *models.SyncOperation) error {
		return errors.New("remote rejected")
	}

	op := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	te.seedQueue(t, op)

	// Initial attempt plus three retries across successive cycles.
	for cycle := 1; cycle <= 3; cycle++ {
		result := te.engine.ProcessSyncQueue(context.Background())
		if result.Failed != 0 {
			t.Fatalf("cycle %d: Failed = %d, want 0", cycle, result.Failed)
		}
		if size := te.engine.Status().QueueSize; size != 1 {
			t.Fatalf("cycle %d: QueueSize = %d, want 1", cycle, size)
		}
	}

	final := te.engine.ProcessSyncQueue(context.Background())
	if final.Failed != 1 {
		t.Errorf("final cycle Failed = %d, want 1", final.Failed)
	}
	if final.Success {
		t.Error("final cycle Success should be false after a permanent failure")
	}
	if len(final.Errors) != 1 {
		t.Fatalf("final cycle Errors = %v, want one entry", final.Errors)
	}

	if got := te.handler.attempts(); got != 4 {
		t.Errorf("total attempts = %d, want 4 (maxRetries+1)", got)
	}
	if size := te.engine.Status().QueueSize; size != 0 {
		t.Errorf("QueueSize = %d, want 0 after permanent failure", size)
	}

	// The operation is gone; another cycle attempts nothing.
	te.engine.ProcessSyncQueue(context.Background())
	if got := te.handler.attempts(); got != 4 {
		t.Errorf("attempts after extra cycle = %d, want still 4", got)
	}
}

// TestReentrancyGuard verifies a second concurrent flush is refused and the
// queue is processed exactly once.
func TestReentrancyGuard(t *testing.T) {
	te := newTestEngine(t, true)
	te.handler.gate = make(chan struct{})

	op := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	te.seedQueue(t, op)

	firstDone := make(chan *models.SyncResult, 1)
	go func() {
		firstDone <- te.engine.ProcessSyncQueue(context.Background())
	}()

	waitFor(t, "first cycle to start", func() bool {
		return te.engine.Status().SyncInProgress
	})

	second := te.engine.ProcessSyncQueue(context.Background())
	if second.Success {
		t.Error("second concurrent cycle should be refused")
	}
	if second.Synced != 0 || second.Failed != 0 {
		t.Errorf("second cycle counts = %d/%d, want 0/0", second.Synced, second.Failed)
	}
	if len(second.Errors) != 1 {
		t.Fatalf("second cycle Errors = %v, want one entry", second.Errors)
	}

	close(te.handler.gate)
	first := <-firstDone
	if !first.Success || first.Synced != 1 {
		t.Errorf("first cycle = %+v, want success with 1 synced", first)
	}
	if got := te.handler.attempts(); got != 1 {
		t.Errorf("attempts = %d, want 1 (queue processed exactly once)", got)
	}
}

// TestIdempotentPersistence verifies the persisted queue after a cycle
// holds exactly the operations that neither succeeded nor failed
// permanently.
func TestIdempotentPersistence(t *testing.T) {
	te := newTestEngine(t, true)
	te.handler.fail = func(op *models.SyncOperation) error {
		if op.EntityID == "c-ok" {
			return nil
		}
		return errors.New("remote rejected")
	}

	ok := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-ok",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	transient := models.NewSyncOperation(models.OperationUpdate, models.EntityContact, "c-retry",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	exhausted := models.NewSyncOperation(models.OperationDelete, models.EntityContact, "c-dead",
		nil, te.clock.Now(), 3)
	exhausted.RetryCount = 3
	te.seedQueue(t, ok, transient, exhausted)

	result := te.engine.ProcessSyncQueue(context.Background())
	if result.Synced != 1 || result.Failed != 1 {
		t.Fatalf("result = %d synced / %d failed, want 1/1", result.Synced, result.Failed)
	}

	value, found, err := te.storage.Get(queueKey)
	if err != nil || !found {
		t.Fatalf("persisted queue missing: found=%v err=%v", found, err)
	}

	var persisted []*models.SyncOperation
	if err := json.Unmarshal(value, &persisted); err != nil {
		t.Fatalf("failed to decode persisted queue: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("persisted queue = %d entries, want 1", len(persisted))
	}
	if persisted[0].EntityID != "c-retry" {
		t.Errorf("persisted entry = %q, want c-retry", persisted[0].EntityID)
	}
	if persisted[0].RetryCount != 1 {
		t.Errorf("persisted RetryCount = %d, want 1", persisted[0].RetryCount)
	}
}

// TestOfflineQueuing verifies queuing works offline and explicit flushes
// are refused without work.
func TestOfflineQueuing(t *testing.T) {
	te := newTestEngine(t, false)

	if err := te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{"name":"x"}`)); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}

	result := te.engine.ProcessSyncQueue(context.Background())
	if result.Success {
		t.Error("offline flush should be refused")
	}
	if result.Synced != 0 || result.Failed != 0 {
		t.Errorf("offline flush counts = %d/%d, want 0/0", result.Synced, result.Failed)
	}
	if got := te.handler.attempts(); got != 0 {
		t.Errorf("dispatches = %d, want 0", got)
	}
	if size := te.engine.Status().QueueSize; size != 1 {
		t.Errorf("QueueSize = %d, want 1", size)
	}
}

// TestCleanupOldOperations verifies age-based cleanup removes exactly the
// stale entries regardless of retry state.
func TestCleanupOldOperations(t *testing.T) {
	te := newTestEngine(t, false)

	stale := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-old",
		json.RawMessage(`{}`), te.clock.Now().Add(-10*24*time.Hour), 3)
	stale.RetryCount = 2
	fresh := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-new",
		json.RawMessage(`{}`), te.clock.Now().Add(-time.Hour), 3)
	te.seedQueue(t, stale, fresh)

	purged, err := te.engine.CleanupOldOperations(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldOperations failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	value, _, _ := te.storage.Get(queueKey)
	var persisted []*models.SyncOperation
	if err := json.Unmarshal(value, &persisted); err != nil {
		t.Fatalf("failed to decode persisted queue: %v", err)
	}
	if len(persisted) != 1 || persisted[0].EntityID != "c-new" {
		t.Errorf("persisted queue = %+v, want only c-new", persisted)
	}
}

// TestCleanupDefaultMaxAge verifies the 7-day default.
func TestCleanupDefaultMaxAge(t *testing.T) {
	te := newTestEngine(t, false)

	stale := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-old",
		json.RawMessage(`{}`), te.clock.Now().Add(-8*24*time.Hour), 3)
	te.seedQueue(t, stale)

	purged, err := te.engine.CleanupOldOperations(0)
	if err != nil {
		t.Fatalf("CleanupOldOperations failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1 with default max age", purged)
	}
}

// TestQueueOperationValidation verifies invalid inputs are rejected before
// touching the queue.
func TestQueueOperationValidation(t *testing.T) {
	te := newTestEngine(t, false)

	tests := []struct {
		name   string
		opType models.OperationType
		entity models.EntityType
		id     string
		data   json.RawMessage
	}{
		{"bad operation type", "upsert", models.EntityContact, "c-1", json.RawMessage(`{}`)},
		{"bad entity type", models.OperationCreate, "deal", "c-1", json.RawMessage(`{}`)},
		{"empty entity id", models.OperationCreate, models.EntityContact, "", json.RawMessage(`{}`)},
		{"create without data", models.OperationCreate, models.EntityContact, "c-1", nil},
		{"update without data", models.OperationUpdate, models.EntityContact, "c-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := te.engine.QueueOperation(tt.opType, tt.entity, tt.id, tt.data)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !apperrors.Is(err, apperrors.ErrValidation) {
				t.Errorf("error = %v, want code VALIDATION_ERROR", err)
			}
		})
	}

	if size := te.engine.Status().QueueSize; size != 0 {
		t.Errorf("QueueSize = %d, want 0 after rejected inputs", size)
	}
}

// TestQueueOperationDeleteNeedsNoData verifies deletes queue without a
// payload.
func TestQueueOperationDeleteNeedsNoData(t *testing.T) {
	te := newTestEngine(t, false)

	if err := te.engine.QueueOperation(models.OperationDelete, models.EntityContact, "c-1", nil); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	if size := te.engine.Status().QueueSize; size != 1 {
		t.Errorf("QueueSize = %d, want 1", size)
	}
}

// TestQueueOperationPersistenceFailure verifies queuing fails loudly when
// storage rejects the write.
func TestQueueOperationPersistenceFailure(t *testing.T) {
	engine := New(Config{
		Storage:       &failingStorage{},
		Connectivity:  NewManualConnectivity(false),
		FlushInterval: -1,
	})
	defer engine.StopPeriodicSync()

	err := engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if !apperrors.Is(err, apperrors.ErrSyncPersistence) {
		t.Errorf("error = %v, want code SYNC_PERSISTENCE_FAILED", err)
	}
}

// TestUnknownEntityHandler verifies operations for unregistered domains
// follow the retry-then-fail path instead of being dropped silently.
func TestUnknownEntityHandler(t *testing.T) {
	te := newTestEngine(t, true)

	op := models.NewSyncOperation(models.OperationCreate, models.EntityFile, "f-1",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	te.seedQueue(t, op)

	// Drop the file handler to simulate a missing registration.
	te.engine.handlersMu.Lock()
	delete(te.engine.handlers, models.EntityFile)
	te.engine.handlersMu.Unlock()

	result := te.engine.ProcessSyncQueue(context.Background())
	if result.Synced != 0 {
		t.Errorf("Synced = %d, want 0", result.Synced)
	}
	if size := te.engine.Status().QueueSize; size != 1 {
		t.Errorf("QueueSize = %d, want 1 (kept for retry)", size)
	}

	// Registering the handler lets the retry drain the queue.
	te.engine.RegisterHandler(models.EntityFile, NewStubHandler(models.EntityFile))
	result = te.engine.ProcessSyncQueue(context.Background())
	if result.Synced != 1 {
		t.Errorf("Synced after registration = %d, want 1", result.Synced)
	}
}

// TestStubHandlersDrainQueue verifies file and automation operations flow
// through the acknowledging stubs.
func TestStubHandlersDrainQueue(t *testing.T) {
	te := newTestEngine(t, false)

	if err := te.engine.QueueOperation(models.OperationCreate, models.EntityFile, "f-1",
		json.RawMessage(`{"name":"deck.pdf"}`)); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	if err := te.engine.QueueOperation(models.OperationDelete, models.EntityAutomation, "a-1", nil); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}

	te.conn.SetOnline(true)
	waitFor(t, "queue drained", func() bool {
		status := te.engine.Status()
		return status.QueueSize == 0 && !status.SyncInProgress
	})
}

// TestLastSyncTimestamp verifies the timestamp advances after every cycle.
func TestLastSyncTimestamp(t *testing.T) {
	te := newTestEngine(t, true)

	if _, ok := te.engine.LastSyncTimestamp(); ok {
		t.Error("LastSyncTimestamp should be absent before the first cycle")
	}

	te.engine.ProcessSyncQueue(context.Background())
	ts, ok := te.engine.LastSyncTimestamp()
	if !ok {
		t.Fatal("LastSyncTimestamp missing after a cycle")
	}
	if ts != te.clock.Now().UnixMilli() {
		t.Errorf("LastSyncTimestamp = %d, want %d", ts, te.clock.Now().UnixMilli())
	}

	// A later cycle advances it, even with nothing to sync.
	te.clock.Advance(time.Minute)
	te.engine.ProcessSyncQueue(context.Background())
	ts2, _ := te.engine.LastSyncTimestamp()
	if ts2 <= ts {
		t.Errorf("LastSyncTimestamp did not advance: %d -> %d", ts, ts2)
	}
}

// TestStatus verifies the composite status read.
func TestStatus(t *testing.T) {
	te := newTestEngine(t, false)

	status := te.engine.Status()
	if status.IsOnline {
		t.Error("IsOnline = true, want false")
	}
	if status.SyncInProgress {
		t.Error("SyncInProgress = true, want false")
	}
	if status.QueueSize != 0 {
		t.Errorf("QueueSize = %d, want 0", status.QueueSize)
	}
	if status.LastSyncAt != 0 {
		t.Errorf("LastSyncAt = %d, want 0", status.LastSyncAt)
	}
}

// TestQueueStats verifies the per-type breakdown.
func TestQueueStats(t *testing.T) {
	te := newTestEngine(t, false)

	payload := json.RawMessage(`{}`)
	te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1", payload)
	te.engine.QueueOperation(models.OperationUpdate, models.EntityContact, "c-2", payload)
	te.engine.QueueOperation(models.OperationDelete, models.EntityFile, "f-1", nil)

	stats := te.engine.QueueStats()
	if stats["total"] != 3 {
		t.Errorf("total = %d, want 3", stats["total"])
	}
	if stats["contact"] != 2 {
		t.Errorf("contact = %d, want 2", stats["contact"])
	}
	if stats["file"] != 1 {
		t.Errorf("file = %d, want 1", stats["file"])
	}
	if stats["create"] != 1 || stats["update"] != 1 || stats["delete"] != 1 {
		t.Errorf("operation counts = %v, want one of each", stats)
	}
}

// TestClearSyncQueue verifies the destructive clear.
func TestClearSyncQueue(t *testing.T) {
	te := newTestEngine(t, false)

	te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1", json.RawMessage(`{}`))
	if err := te.engine.ClearSyncQueue(); err != nil {
		t.Fatalf("ClearSyncQueue failed: %v", err)
	}
	if size := te.engine.Status().QueueSize; size != 0 {
		t.Errorf("QueueSize = %d, want 0 after clear", size)
	}
}

// TestQueueSurvivesRestart verifies a new engine over the same storage sees
// the previously queued operations.
func TestQueueSurvivesRestart(t *testing.T) {
	te := newTestEngine(t, false)

	te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1", json.RawMessage(`{}`))
	te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-2", json.RawMessage(`{}`))
	te.engine.StopPeriodicSync()

	restarted := New(Config{
		Storage:       te.storage,
		Connectivity:  NewManualConnectivity(false),
		FlushInterval: -1,
	})
	defer restarted.StopPeriodicSync()

	if size := restarted.Status().QueueSize; size != 2 {
		t.Errorf("QueueSize after restart = %d, want 2", size)
	}
}

// TestSyncEvents verifies lifecycle events for queueing and cycles.
func TestSyncEvents(t *testing.T) {
	te := newTestEngine(t, false)

	te.engine.QueueOperation(models.OperationCreate, models.EntityContact, "c-1", json.RawMessage(`{}`))

	types := te.events.types()
	if len(types) != 1 || types[0] != EventSyncQueued {
		t.Fatalf("events after queueing = %v, want [sync.queued]", types)
	}

	te.conn.SetOnline(true)
	waitFor(t, "cycle events", func() bool {
		return len(te.events.types()) >= 3
	})

	types = te.events.types()
	if types[1] != EventSyncStarted {
		t.Errorf("events[1] = %q, want sync.started", types[1])
	}
	if types[2] != EventSyncCompleted {
		t.Errorf("events[2] = %q, want sync.completed", types[2])
	}
}

// TestResolveConflictRecords verifies engine-level resolution reaches the
// conflict recorder.
func TestResolveConflictRecords(t *testing.T) {
	recorder := &recordingConflicts{}
	te := newTestEngine(t, false)
	te.engine.recorder = recorder

	op := models.NewSyncOperation(models.OperationUpdate, models.EntityContact, "c-1", nil, te.clock.Now(), 3)
	merged, err := te.engine.ResolveConflict(op,
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"b": 3, "c": 4},
		conflict.StrategyMerge)
	if err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	if merged["a"] != 1 || merged["b"] != 3 || merged["c"] != 4 {
		t.Errorf("merged = %v, want {a:1 b:3 c:4 + markers}", merged)
	}
	if merged[conflict.MarkerResolved] != true {
		t.Error("merged record should carry the resolution marker")
	}

	if len(recorder.entries) != 1 {
		t.Fatalf("recorded conflicts = %d, want 1", len(recorder.entries))
	}
	if recorder.entries[0].EntityID != "c-1" {
		t.Errorf("recorded entity = %q, want c-1", recorder.entries[0].EntityID)
	}
}

// TestResolveConflictManual verifies the manual strategy surfaces through
// the engine and records nothing.
func TestResolveConflictManual(t *testing.T) {
	recorder := &recordingConflicts{}
	te := newTestEngine(t, false)
	te.engine.recorder = recorder

	_, err := te.engine.ResolveConflict(nil, nil, nil, conflict.StrategyManual)
	if err == nil {
		t.Fatal("manual strategy must fail")
	}
	if !apperrors.Is(err, apperrors.ErrSyncManualResolution) {
		t.Errorf("error = %v, want code SYNC_MANUAL_RESOLUTION", err)
	}
	if len(recorder.entries) != 0 {
		t.Errorf("recorded conflicts = %d, want 0", len(recorder.entries))
	}
}

// recordingConflicts captures recorded conflict log entries.
type recordingConflicts struct {
	mu      gosync.Mutex
	entries []*models.ConflictLog
}

func (r *recordingConflicts) RecordConflict(entry *models.ConflictLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// TestForceSync verifies the on-demand alias behaves like a normal cycle.
func TestForceSync(t *testing.T) {
	te := newTestEngine(t, true)

	op := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{}`), te.clock.Now(), 3)
	te.seedQueue(t, op)

	result := te.engine.ForceSync(context.Background())
	if !result.Success || result.Synced != 1 {
		t.Errorf("ForceSync = %+v, want success with 1 synced", result)
	}
}

// TestStopPeriodicSyncIdempotent verifies teardown is safe to repeat.
func TestStopPeriodicSyncIdempotent(t *testing.T) {
	te := newTestEngine(t, true)

	te.engine.StopPeriodicSync()
	te.engine.StopPeriodicSync()
}

// TestPeriodicLoopFlushes verifies the background ticker drives cycles.
func TestPeriodicLoopFlushes(t *testing.T) {
	storage := NewMemoryStorage()
	handler := &scriptedHandler{}

	op := models.NewSyncOperation(models.OperationCreate, models.EntityContact, "c-1",
		json.RawMessage(`{}`), time.Now(), 3)
	value, _ := json.Marshal([]*models.SyncOperation{op})
	storage.Set(queueKey, value)

	engine := New(Config{
		Storage:       storage,
		Handlers:      map[models.EntityType]EntityHandler{models.EntityContact: handler},
		Connectivity:  NewManualConnectivity(true),
		FlushInterval: 20 * time.Millisecond,
	})
	defer engine.StopPeriodicSync()

	waitFor(t, "periodic flush", func() bool {
		return handler.attempts() == 1 && engine.Status().QueueSize == 0
	})
}
