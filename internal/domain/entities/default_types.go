package entities

import "encoding/json"

// Built-in entity type names, one per calling module.
const (
	TypeContact       = "contact"
	TypeDeal          = "deal"
	TypeTask          = "task"
	TypeMessage       = "message"
	TypeCalendarEvent = "calendar_event"
)

// DefaultEntityTypes are the payload shapes every workspace accepts.
// Their schemas only type the known fields; values stay open and any field
// may be absent. They cannot be removed.
var DefaultEntityTypes = []EntityType{
	{
		Name:        TypeContact,
		Description: "People and organisations tracked by the CRM",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"firstName": {"type": "string"},
				"lastName": {"type": "string"},
				"email": {"type": "string"},
				"phone": {"type": "string"},
				"company": {"type": "string"},
				"tags": {"type": "array", "items": {"type": "string"}}
			}
		}`),
	},
	{
		Name:        TypeDeal,
		Description: "Sales opportunities moving through a pipeline",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"amount": {"type": "number"},
				"currency": {"type": "string"},
				"stage": {"type": "string"}
			}
		}`),
	},
	{
		Name:        TypeTask,
		Description: "Work items with a status and an optional due date",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"description": {"type": "string"},
				"status": {"type": "string"},
				"priority": {"type": "string"},
				"dueDate": {"type": "string"}
			}
		}`),
	},
	{
		Name:        TypeMessage,
		Description: "Chat and mail messages",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string"},
				"body": {"type": "string"},
				"from": {"type": "string"},
				"to": {"type": "array", "items": {"type": "string"}},
				"channel": {"type": "string"}
			}
		}`),
	},
	{
		Name:        TypeCalendarEvent,
		Description: "Meetings and other scheduled events",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"startsAt": {"type": "string"},
				"endsAt": {"type": "string"},
				"location": {"type": "string"},
				"attendees": {"type": "array", "items": {"type": "string"}}
			}
		}`),
	},
}

// DefaultTypeNames returns just the names of default types for quick lookup.
func DefaultTypeNames() []string {
	names := make([]string, len(DefaultEntityTypes))
	for i, t := range DefaultEntityTypes {
		names[i] = t.Name
	}
	return names
}

// IsDefaultType checks if a type name is a built-in default.
func IsDefaultType(name string) bool {
	for _, t := range DefaultEntityTypes {
		if t.Name == name {
			return true
		}
	}
	return false
}
