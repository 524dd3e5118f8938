// Package relay is the cross-process fan-out layer. Every server process
// publishes its presence snapshot and addressed point-to-point events on a
// shared bus; sibling processes subscribe and deliver to their locally
// registered connections.
package relay

import (
	"encoding/json"

	"github.com/okatev/pulse/internal/domain"
)

const (
	TopicPresence = "pulse:presence"
	TopicEvents   = "pulse:events"
	TopicCalls    = "pulse:calls"
)

// Snapshot is a full per-process presence announcement. Full snapshots
// rather than deltas: redelivery of a stale snapshot is harmless because a
// newer one from the same node simply replaces it.
type Snapshot struct {
	Node   string          `json:"node"`
	Users  []domain.UserID `json:"users"`
	SentAt int64           `json:"sentAt"`
}

// Call-control actions carried on TopicCalls.
const (
	CallActionAnswer     = "answer"
	CallActionCandidate  = "candidate"
	CallActionAccept     = "accept"
	CallActionReject     = "reject"
	CallActionEnd        = "end"
	CallActionDisconnect = "disconnect"
)

// CallControl escalates call signaling to whichever node owns the session.
// A node that receives an answer, candidate, or teardown for a room missing
// from its local table publishes it here; the owning node applies it to its
// state machine. Every node filters out its own publishes by origin.
type CallControl struct {
	Origin  string          `json:"origin"`
	Action  string          `json:"action"`
	Room    domain.RoomID   `json:"room,omitempty"`
	From    domain.UserID   `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Addressed is a point-to-point event escalated to the bus because the
// destination was not registered on the publishing process. Every node
// subscribes and filters for identities in its own registry.
type Addressed struct {
	Origin  string           `json:"origin"`
	To      domain.UserID    `json:"to"`
	Kind    domain.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}
