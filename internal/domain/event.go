package domain

import "github.com/pion/webrtc/v4"

// EventKind names one kind of ephemeral per-user event. The string values
// double as the wire-level "type" field, so clients see them verbatim.
type EventKind string

const (
	KindOnlineUsers   EventKind = "getOnlineUsers"
	KindTyping        EventKind = "typing"
	KindCallOffer     EventKind = "call-offer"
	KindCallAnswer    EventKind = "call-answer"
	KindICECandidate  EventKind = "ice-candidate"
	KindCallAccepted  EventKind = "call-accepted"
	KindCallRejected  EventKind = "call-rejected"
	KindCallEnded     EventKind = "call-ended"
	KindCallTimeout   EventKind = "call-timeout"
	KindFriendRequest EventKind = "friend-request"
	KindMessage       EventKind = "message"
)

// Typing is forwarded as-is; expiry is client-side (3s window), the server
// keeps no typing state.
type Typing struct {
	From UserID `json:"from"`
	To   UserID `json:"to"`
}

type CallOffer struct {
	From UserID                    `json:"from"`
	To   UserID                    `json:"to"`
	Room RoomID                    `json:"room"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type CallAnswer struct {
	From UserID                    `json:"from"`
	To   UserID                    `json:"to"`
	Room RoomID                    `json:"room"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type ICECandidate struct {
	From      UserID                  `json:"from"`
	To        UserID                  `json:"to"`
	Room      RoomID                  `json:"room"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type CallAccepted struct {
	Room        RoomID `json:"room"`
	Participant UserID `json:"participant"`
}

type CallRejected struct {
	Room        RoomID `json:"room"`
	Participant UserID `json:"participant"`
}

type CallEnded struct {
	Room   RoomID `json:"room"`
	Reason string `json:"reason,omitempty"`
}

type FriendRequest struct {
	From UserID `json:"from"`
	To   UserID `json:"to"`
}

// Message carries only metadata of an already-persisted chat message; the
// body lives in the message store, which is not this subsystem's concern.
type Message struct {
	From      UserID `json:"from"`
	To        UserID `json:"to"`
	MessageID string `json:"messageId"`
}

type OnlineUsers struct {
	Users []UserID `json:"users"`
}
