package sync

// EventType identifies a sync lifecycle event.
type EventType string

const (
	EventSyncQueued    EventType = "sync.queued"
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
)

// Event is a sync lifecycle notification pushed to the UI layer.
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// EventHandler receives sync lifecycle events.
type EventHandler interface {
	OnSyncEvent(event Event)
}
