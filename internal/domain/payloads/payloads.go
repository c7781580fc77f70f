// Package payloads maps the built-in entity types to typed Go payloads.
// Documents are persisted open; these types give callers a checked view.
package payloads

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ersonp/unistore/internal/domain/entities"
)

// ErrUnknownType is returned by Decode for types without a typed payload.
var ErrUnknownType = errors.New("no typed payload for entity type")

// Payload is implemented by every typed entity document.
type Payload interface {
	EntityType() string
}

// Contact is the CRM contact document.
type Contact struct {
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func (Contact) EntityType() string { return entities.TypeContact }

// Deal is a sales opportunity.
type Deal struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Stage    string  `json:"stage,omitempty"`
}

func (Deal) EntityType() string { return entities.TypeDeal }

// Task is a work item.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

func (Task) EntityType() string { return entities.TypeTask }

// Message is a chat or mail message.
type Message struct {
	Subject string   `json:"subject,omitempty"`
	Body    string   `json:"body,omitempty"`
	From    string   `json:"from,omitempty"`
	To      []string `json:"to,omitempty"`
	Channel string   `json:"channel,omitempty"`
}

func (Message) EntityType() string { return entities.TypeMessage }

// CalendarEvent is a scheduled meeting.
type CalendarEvent struct {
	Title     string   `json:"title"`
	StartsAt  string   `json:"startsAt,omitempty"`
	EndsAt    string   `json:"endsAt,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

func (CalendarEvent) EntityType() string { return entities.TypeCalendarEvent }

// Decode converts an open document into the typed payload for entityType.
// Unknown fields are dropped from the typed view but stay in the document.
func Decode(entityType string, data map[string]any) (Payload, error) {
	var p Payload
	switch entityType {
	case entities.TypeContact:
		p = &Contact{}
	case entities.TypeDeal:
		p = &Deal{}
	case entities.TypeTask:
		p = &Task{}
	case entities.TypeMessage:
		p = &Message{}
	case entities.TypeCalendarEvent:
		p = &CalendarEvent{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, entityType)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s document: %w", entityType, err)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, entities.NewValidationError("data", "%s document: %v", entityType, err)
	}
	return p, nil
}

// Encode converts a typed payload into an open document.
func Encode(p Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", p.EntityType(), err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", p.EntityType(), err)
	}
	return doc, nil
}
