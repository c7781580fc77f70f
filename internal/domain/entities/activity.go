package entities

import "time"

// Activity is an append-only event attached to an entity, such as a call
// logged from the CRM or a message sent from chat. Activities outlive the
// entity they reference.
type Activity struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	EntityID     string    `json:"entity_id"`
	ActivityType string    `json:"activity_type"`
	SourceModule string    `json:"source_module"`
	Content      string    `json:"content"`
	Participants []string  `json:"participants"`
	Timestamp    time.Time `json:"timestamp"`
}
