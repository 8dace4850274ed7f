// Sync operation exports for mobile platforms (Android/iOS).
// All exported functions use C calling convention and can be called from
// Dart FFI. Results are JSON strings the caller must free via FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unsafe"

	"github.com/salespilot/core/internal/models"
)

//export SyncQueueOperation
// SyncQueueOperation appends a mutation to the durable queue.
// operation is create/update/delete, entityType is contact/file/automation,
// data is the entity payload as JSON (may be empty for deletes).
func SyncQueueOperation(operation, entityType, entityID, data *C.char) *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	var payload json.RawMessage
	if raw := C.GoString(data); raw != "" {
		payload = json.RawMessage(raw)
	}

	err := engine.QueueOperation(
		models.OperationType(C.GoString(operation)),
		models.EntityType(C.GoString(entityType)),
		C.GoString(entityID),
		payload,
	)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to queue operation: %v", err))
		return nil
	}

	return jsonResult(map[string]interface{}{
		"status":     "queued",
		"queue_size": engine.Status().QueueSize,
	})
}

//export SyncNow
// SyncNow runs a flush cycle immediately and returns its result.
func SyncNow() *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	result := engine.ForceSync(context.Background())
	return jsonResult(result)
}

//export SyncStatus
// SyncStatus returns connectivity, queue size, and last sync time.
func SyncStatus() *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	return jsonResult(engine.Status())
}

//export SyncQueueStats
// SyncQueueStats returns a per-type breakdown of pending operations.
func SyncQueueStats() *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	return jsonResult(engine.QueueStats())
}

//export SyncCleanup
// SyncCleanup purges queued operations older than maxAgeHours.
// Zero selects the 7-day default.
func SyncCleanup(maxAgeHours C.int) *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	purged, err := engine.CleanupOldOperations(time.Duration(maxAgeHours) * time.Hour)
	if err != nil {
		setLastError(fmt.Sprintf("Cleanup failed: %v", err))
		return nil
	}

	return jsonResult(map[string]interface{}{"purged": purged})
}

//export SyncClearQueue
// SyncClearQueue drops every pending operation.
func SyncClearQueue() *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	if err := engine.ClearSyncQueue(); err != nil {
		setLastError(fmt.Sprintf("Failed to clear queue: %v", err))
		return nil
	}

	return jsonResult(map[string]interface{}{"status": "cleared"})
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func jsonResult(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}
