// Package models provides data model definitions for SalesPilot Core.
package models

// SyncResult represents the outcome of one flush cycle.
// Success is false when the cycle was refused (offline, already running)
// or when at least one operation failed permanently during the cycle.
type SyncResult struct {
	Success   bool     `json:"success"`
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

// SyncStatus is a point-in-time read of the engine's process-wide state.
// LastSyncAt is epoch milliseconds; zero means no flush cycle has completed.
type SyncStatus struct {
	IsOnline       bool  `json:"is_online"`
	SyncInProgress bool  `json:"sync_in_progress"`
	QueueSize      int   `json:"queue_size"`
	LastSyncAt     int64 `json:"last_sync_at"`
}
