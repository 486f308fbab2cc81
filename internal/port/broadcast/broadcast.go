// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Event type constants shared by producers and the WebSocket adapter.
const (
	EventTaskStatus  = "task.status"
	EventAgentStatus = "agent.status"
)

// Broadcaster sends a typed event to all connected clients. Delivery is
// best-effort; slow or gone clients are dropped, never waited on.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
