package domain

import (
	"encoding/json"
	"errors"
)

// EventType is the discriminator of an executor-to-client message.
type EventType string

const (
	EventLog               EventType = "log"
	EventExecutionStart    EventType = "execution_start"
	EventProgress          EventType = "progress"
	EventExecutionComplete EventType = "execution_complete"
	EventExecutionResult   EventType = "execution_result"

	// EventAny subscribes to every event regardless of type.
	EventAny EventType = "*"
)

// ResultStatus values carried inside an execution_complete result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ExecutionResult is the terminal payload of an execution_complete event.
// Beyond Status and Error the executor may attach arbitrary keys; they
// are preserved in Extra.
type ExecutionResult struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Output any            `json:"output,omitempty"`
	Extra  map[string]any `json:"-"`
}

// UnmarshalJSON keeps keys outside the known set in Extra.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	type plain ExecutionResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err == nil {
		delete(all, "status")
		delete(all, "error")
		delete(all, "output")
		if len(all) > 0 {
			p.Extra = all
		}
	}
	*r = ExecutionResult(p)
	return nil
}

// Event is one inbound executor message. Fields beyond Type are populated
// according to the event type; Raw always carries the full frame for
// passthrough consumers.
type Event struct {
	Type     EventType        `json:"type"`
	NodeID   string           `json:"nodeId,omitempty"`
	Content  string           `json:"content,omitempty"`
	Progress float64          `json:"progress,omitempty"`
	Message  string           `json:"message,omitempty"`
	Result   *ExecutionResult `json:"result,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseEvent decodes one executor frame. Unknown event types are not an
// error: they decode into an Event the caller can route or ignore. A
// frame without a type discriminator is malformed.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, errors.New("event missing type")
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}
