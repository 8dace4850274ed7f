package sync

import (
	"context"
	"encoding/json"

	apperrors "github.com/salespilot/core/internal/errors"
	"github.com/salespilot/core/internal/logging"
	"github.com/salespilot/core/internal/models"
)

// EntityStore is the remote persistence capability consumed by entity
// handlers. One collection per entity domain; payloads stay opaque.
type EntityStore interface {
	Create(ctx context.Context, collection string, data json.RawMessage) error
	Update(ctx context.Context, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// EntityHandler applies one queued mutation to the remote store for a
// single entity domain. Adding a domain means registering a handler, not
// editing a dispatch switch.
type EntityHandler interface {
	Create(ctx context.Context, op *models.SyncOperation) error
	Update(ctx context.Context, op *models.SyncOperation) error
	Delete(ctx context.Context, op *models.SyncOperation) error
}

// dispatch routes one operation to its handler method by operation type.
func dispatch(ctx context.Context, handler EntityHandler, op *models.SyncOperation) error {
	switch op.Type {
	case models.OperationCreate:
		return handler.Create(ctx, op)
	case models.OperationUpdate:
		return handler.Update(ctx, op)
	case models.OperationDelete:
		return handler.Delete(ctx, op)
	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown operation type: "+string(op.Type))
	}
}

// ContactHandler syncs contact mutations to the remote contacts collection.
type ContactHandler struct {
	store EntityStore
}

// NewContactHandler creates a ContactHandler over the remote store.
func NewContactHandler(store EntityStore) *ContactHandler {
	return &ContactHandler{store: store}
}

func (h *ContactHandler) Create(ctx context.Context, op *models.SyncOperation) error {
	return h.store.Create(ctx, "contacts", op.Data)
}

func (h *ContactHandler) Update(ctx context.Context, op *models.SyncOperation) error {
	return h.store.Update(ctx, "contacts", op.EntityID, op.Data)
}

func (h *ContactHandler) Delete(ctx context.Context, op *models.SyncOperation) error {
	return h.store.Delete(ctx, "contacts", op.EntityID)
}

// StubHandler acknowledges operations without remote dispatch. File and
// automation sync are not wired to a backend yet; the stub keeps their
// operations flowing through the queue so the real handler can slot in
// later without engine changes.
type StubHandler struct {
	entity models.EntityType
}

// NewStubHandler creates a StubHandler for the given domain.
func NewStubHandler(entity models.EntityType) *StubHandler {
	return &StubHandler{entity: entity}
}

func (h *StubHandler) Create(ctx context.Context, op *models.SyncOperation) error {
	return h.acknowledge(op)
}

func (h *StubHandler) Update(ctx context.Context, op *models.SyncOperation) error {
	return h.acknowledge(op)
}

func (h *StubHandler) Delete(ctx context.Context, op *models.SyncOperation) error {
	return h.acknowledge(op)
}

func (h *StubHandler) acknowledge(op *models.SyncOperation) error {
	logging.Info("sync not yet wired for entity, operation acknowledged",
		map[string]interface{}{
			"entity_type":  string(h.entity),
			"operation_id": op.ID,
			"operation":    string(op.Type),
		})
	return nil
}

// DefaultHandlers returns the standard handler registry: contacts dispatch
// to the remote store, files and automations are acknowledged by stubs.
func DefaultHandlers(store EntityStore) map[models.EntityType]EntityHandler {
	return map[models.EntityType]EntityHandler{
		models.EntityContact:    NewContactHandler(store),
		models.EntityFile:       NewStubHandler(models.EntityFile),
		models.EntityAutomation: NewStubHandler(models.EntityAutomation),
	}
}
