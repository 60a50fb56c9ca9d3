package domain

import "time"

// EventType names a change notification.
type EventType string

const (
	EventEntityCreated         EventType = "entity:created"
	EventEntityUpdated         EventType = "entity:updated"
	EventEntityDeleted         EventType = "entity:deleted"
	EventApprovalStatusChanged EventType = "approval:status:changed"
	EventDecisionMade          EventType = "decision:made"
	EventClaimUpdated          EventType = "claim:updated"
	EventExceptionRaised       EventType = "exception:raised"
	EventNotification          EventType = "notification"
)

// Event is a best-effort change notification emitted after a mutation commits.
type Event struct {
	Type       EventType `json:"type"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Data       any       `json:"data,omitempty"`
	UserID     *string   `json:"userId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Room returns the per-record channel name of the event, e.g. "approval:42".
func (e Event) Room() string {
	return e.EntityType + ":" + e.EntityID
}
