// Package conflict provides conflict resolution between server-side and
// client-side versions of the same entity.
package conflict

import (
	"time"

	apperrors "github.com/salespilot/core/internal/errors"
	"github.com/salespilot/core/internal/logging"
	"github.com/salespilot/core/internal/models"
)

// Strategy defines how a server/local divergence is reconciled.
type Strategy string

const (
	StrategyServerWins Strategy = "server-wins"
	StrategyLocalWins  Strategy = "local-wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// Resolution markers added to merged records so downstream consumers can
// tell merged data from untouched data.
const (
	MarkerResolved   = "_conflictResolved"
	MarkerResolvedAt = "_resolvedAt"
)

// Valid reports whether the strategy is one of the defined policies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyServerWins, StrategyLocalWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

// Resolve reconciles serverData and localData for the entity the operation
// targets. It returns the winning record and an audit log entry.
//
// server-wins and local-wins return the chosen record unchanged. merge
// starts from the server record and overlays every non-nil local field,
// then tags the result with the resolution markers. manual always fails:
// interactive resolution is not implemented and must never silently fall
// back to another strategy.
func Resolve(op *models.SyncOperation, serverData, localData map[string]interface{}, strategy Strategy, now time.Time) (map[string]interface{}, *models.ConflictLog, error) {
	if !strategy.Valid() {
		return nil, nil, apperrors.New(apperrors.ErrInvalid, "unknown conflict strategy: "+string(strategy))
	}

	entry := &models.ConflictLog{
		Strategy:        string(strategy),
		LocalTimestamp:  timestampField(localData),
		ServerTimestamp: timestampField(serverData),
		ResolvedAt:      now.UnixMilli(),
	}
	if op != nil {
		entry.EntityType = string(op.EntityType)
		entry.EntityID = op.EntityID
	}

	switch strategy {
	case StrategyServerWins:
		logResolution(entry)
		return serverData, entry, nil

	case StrategyLocalWins:
		logResolution(entry)
		return localData, entry, nil

	case StrategyMerge:
		merged := mergeFields(serverData, localData, now)
		logResolution(entry)
		return merged, entry, nil

	default: // StrategyManual
		logging.Warn("manual conflict resolution requested but not implemented",
			map[string]interface{}{
				"entity_type": entry.EntityType,
				"entity_id":   entry.EntityID,
			})
		return nil, nil, apperrors.New(apperrors.ErrSyncManualResolution, "manual conflict resolution is not implemented")
	}
}

// mergeFields merges field-by-field: the server record is the base and
// every non-nil local field takes precedence over its server counterpart.
func mergeFields(serverData, localData map[string]interface{}, now time.Time) map[string]interface{} {
	merged := make(map[string]interface{}, len(serverData)+len(localData)+2)
	for k, v := range serverData {
		merged[k] = v
	}
	for k, v := range localData {
		if v == nil {
			continue
		}
		merged[k] = v
	}

	merged[MarkerResolved] = true
	merged[MarkerResolvedAt] = now.UnixMilli()
	return merged
}

// timestampField pulls an updated_at number out of a record when present,
// for the audit log.
func timestampField(data map[string]interface{}) int64 {
	if data == nil {
		return 0
	}
	switch v := data["updated_at"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func logResolution(entry *models.ConflictLog) {
	logging.Info("conflict resolved",
		map[string]interface{}{
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"strategy":    entry.Strategy,
		})
}
