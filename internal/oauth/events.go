package oauth

import "encoding/json"

// EventType classifies a progress event emitted by the login and logout
// flows.
type EventType string

const (
	EventInfo            EventType = "info"
	EventError           EventType = "error"
	EventWaiting         EventType = "waiting"
	EventVerificationURL EventType = "verification_url"
	EventSuccess         EventType = "success"
)

// Event is one step of a flow's consumer-facing narration. Sequences are
// finite and end on the first terminal error or success event.
type Event struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e Event) String() string {
	return e.Message
}

// JSON renders the event as a single JSON object, for line-oriented output.
func (e Event) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		return `{"type":"error","message":"unencodable event"}`
	}
	return string(b)
}
