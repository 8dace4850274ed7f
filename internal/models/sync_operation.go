// Package models provides data model definitions for SalesPilot Core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType represents the kind of mutation queued for sync.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Valid reports whether the operation type is one of the supported kinds.
func (o OperationType) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// EntityType identifies the domain an operation targets.
type EntityType string

const (
	EntityContact    EntityType = "contact"
	EntityFile       EntityType = "file"
	EntityAutomation EntityType = "automation"
)

// Valid reports whether the entity type is one of the supported domains.
func (e EntityType) Valid() bool {
	switch e {
	case EntityContact, EntityFile, EntityAutomation:
		return true
	}
	return false
}

// SyncOperation represents a single pending mutation in the sync queue.
// Data is an opaque, already-serialized payload; the engine never inspects
// its shape. Timestamp is epoch milliseconds and doubles as the FIFO
// tie-breaker and the age-based cleanup key.
type SyncOperation struct {
	ID         string          `json:"id"`
	Type       OperationType   `json:"type"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// NewSyncOperation builds a queued operation with a human-diagnosable ID
// derived from the operation coordinates and creation time.
func NewSyncOperation(opType OperationType, entityType EntityType, entityID string, data json.RawMessage, now time.Time, maxRetries int) *SyncOperation {
	ts := now.UnixMilli()
	return &SyncOperation{
		ID:         fmt.Sprintf("%s_%s_%s_%d", opType, entityType, entityID, ts),
		Type:       opType,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		Timestamp:  ts,
		RetryCount: 0,
		MaxRetries: maxRetries,
	}
}

// Time returns the creation timestamp as time.Time.
func (op *SyncOperation) Time() time.Time {
	return time.UnixMilli(op.Timestamp)
}

// Age returns how long ago the operation was queued.
func (op *SyncOperation) Age(now time.Time) time.Duration {
	return now.Sub(op.Time())
}
