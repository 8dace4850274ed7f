// Package handlers provides REST API handlers for sync status and
// operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/salespilot/core/internal/errors"
	"github.com/salespilot/core/internal/models"
	syncengine "github.com/salespilot/core/internal/sync"
)

// SyncHandler exposes the sync engine to the desktop shell.
type SyncHandler struct {
	engine syncengine.EngineInterface
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine syncengine.EngineInterface) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// GetStatus handles GET /api/sync/status.
// Returns connectivity, in-progress flag, queue size, last sync time and a
// per-type queue breakdown.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":      h.engine.Status(),
		"queue_stats": h.engine.QueueStats(),
	}
	if ts, ok := h.engine.LastSyncTimestamp(); ok {
		response["last_sync"] = ts
	}

	writeJSON(w, http.StatusOK, response)
}

// TriggerSync handles POST /api/sync/now.
// Runs a flush cycle immediately and returns its result. A refused cycle
// (offline, or one already running) comes back as 409.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.engine.ForceSync(r.Context())

	status := http.StatusOK
	if !result.Success && result.Synced == 0 && result.Failed == 0 {
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]interface{}{
		"success":   result.Success,
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
		"errors":    result.Errors,
	})
}

// queueRequest is the body for POST /api/sync/queue.
type queueRequest struct {
	Operation  models.OperationType `json:"operation"`
	EntityType models.EntityType    `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	Data       json.RawMessage      `json:"data,omitempty"`
}

// QueueOperation handles POST /api/sync/queue.
// Appends a mutation to the durable queue; invalid input is 400, a storage
// failure is 500, an accepted mutation is 202.
func (h *SyncHandler) QueueOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.QueueOperation(req.Operation, req.EntityType, req.EntityID, req.Data); err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to queue operation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "queued",
		"queue_size": h.engine.Status().QueueSize,
	})
}

// cleanupRequest is the body for POST /api/sync/cleanup.
type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// Cleanup handles POST /api/sync/cleanup.
// Purges queued operations older than max_age_hours (default 7 days).
func (h *SyncHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cleanupRequest
	if r.Body != nil {
		// An empty body means the default max age.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.MaxAgeHours < 0 {
		http.Error(w, "max_age_hours must not be negative", http.StatusBadRequest)
		return
	}

	purged, err := h.engine.CleanupOldOperations(time.Duration(req.MaxAgeHours) * time.Hour)
	if err != nil {
		http.Error(w, "Cleanup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"purged": purged,
	})
}

// ClearQueue handles DELETE /api/sync/queue.
// Drops every pending operation.
func (h *SyncHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.engine.ClearSyncQueue(); err != nil {
		http.Error(w, "Failed to clear queue", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
