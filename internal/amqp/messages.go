package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseUpdated EventType = "expense.updated"
	EventExpenseDeleted EventType = "expense.deleted"
	EventAdminBroadcast EventType = "admin.broadcast"
)

// Event is published after expense mutations and admin broadcasts. UserID
// is zero for broadcasts.
type Event struct {
	Type        EventType `json:"type"`
	UserID      int64     `json:"user_id,omitempty"`
	ExpenseID   int64     `json:"expense_id,omitempty"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEvent(t EventType, userID int64) Event {
	return Event{Type: t, UserID: userID, Timestamp: time.Now().UTC()}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects unknown types.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	switch e.Type {
	case EventExpenseCreated, EventExpenseUpdated, EventExpenseDeleted, EventAdminBroadcast:
	default:
		return Event{}, errors.New("unknown event type " + string(e.Type))
	}
	return e, nil
}
