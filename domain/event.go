package domain

import "github.com/bytedance/sonic"

// Entity types carried by change events.
const (
	EntityTask     = "task"
	EntityCategory = "category"
)

// Change event types.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeEvent announces a confirmed change of one entity.
type ChangeEvent struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// Name is the event name, e.g. task-created.
func (e ChangeEvent) Name() string {
	return e.EntityType + "-" + e.Type
}
