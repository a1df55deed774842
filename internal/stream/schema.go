// Package stream defines the engine → UI WebSocket protocol: the UI
// observes session snapshots and notices; mutations go over HTTP.
package stream

// ─── Actions (Client → Engine) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Engine → Client) ───────────────────────────────────────

type Event string

const (
	// EventState carries a full session snapshot; sent on subscribe and on
	// every state or answer change.
	EventState Event = "state"
	// EventNotice carries one user-facing notification (the toast sink).
	EventNotice Event = "notice"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

type StateEvent struct {
	Event    Event `json:"event"`
	Snapshot any   `json:"snapshot"`
}

type NoticeEvent struct {
	Event  Event `json:"event"`
	Notice any   `json:"notice"`
}

type ErrorEvent struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
