// Package models provides data model definitions for SalesPilot Core.
package models

import "time"

// ConflictLog records a resolved server/local divergence for user awareness.
type ConflictLog struct {
	ID              UUID   `db:"id" json:"id"`
	EntityType      string `db:"entity_type" json:"entity_type"`
	EntityID        string `db:"entity_id" json:"entity_id"`
	Strategy        string `db:"strategy" json:"strategy"`
	LocalTimestamp  int64  `db:"local_timestamp" json:"local_timestamp"`
	ServerTimestamp int64  `db:"server_timestamp" json:"server_timestamp"`
	ResolvedAt      int64  `db:"resolved_at" json:"resolved_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// ResolvedAtTime returns ResolvedAt as time.Time.
func (c *ConflictLog) ResolvedAtTime() time.Time {
	return time.UnixMilli(c.ResolvedAt)
}
