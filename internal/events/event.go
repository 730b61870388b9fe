package events

import (
	"encoding/json"

	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// Type is the kind of a stream event.
type Type string

const (
	TypeStatus       Type = "status"
	TypeTaskComplete Type = "task_complete"
	TypeError        Type = "error"
	TypeComplete     Type = "complete"
)

// IsTerminal reports whether an event of this type ends a stream.
func (t Type) IsTerminal() bool {
	return t == TypeError || t == TypeComplete
}

// Event is the unit delivered to stream consumers.
type Event struct {
	Type    Type             `json:"type"`
	Message string           `json:"message,omitempty"`
	Task    string           `json:"task,omitempty"`
	Data    recovery.Payload `json:"data,omitempty"`
}

// NewStatus announces progress.
func NewStatus(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

// NewTaskComplete carries the recovered payload of one stage.
func NewTaskComplete(task string, data recovery.Payload) Event {
	if data == nil {
		data = recovery.Payload{}
	}
	return Event{Type: TypeTaskComplete, Task: task, Data: data}
}

// NewError terminates a stream with a failure.
func NewError(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// NewComplete terminates a stream successfully.
func NewComplete(message string) Event {
	return Event{Type: TypeComplete, Message: message}
}

// Validate checks the field requirements of each event type.
func (e Event) Validate() error {
	switch e.Type {
	case TypeStatus, TypeError, TypeComplete:
		if e.Message == "" {
			return errors.NewValidationError("message", "required for "+string(e.Type)+" events", e.Message)
		}
	case TypeTaskComplete:
		if e.Task == "" {
			return errors.NewValidationError("task", "required for task_complete events", e.Task)
		}
		if e.Data == nil {
			return errors.NewValidationError("data", "required for task_complete events", nil)
		}
	default:
		return errors.NewValidationError("type", "unknown event type", e.Type)
	}
	return nil
}

// MarshalJSON keeps "data" on the wire even when the payload is an empty
// object, while still omitting it when absent.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type    Type   `json:"type"`
		Message string `json:"message,omitempty"`
		Task    string `json:"task,omitempty"`
		Data    any    `json:"data,omitempty"`
	}

	w := wire{Type: e.Type, Message: e.Message, Task: e.Task}
	if e.Data != nil {
		w.Data = e.Data
	}
	return json.Marshal(w)
}
