package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
	"github.com/okatev/pulse/internal/relay"
)

type callState int

const (
	callOffered callState = iota
	callActive
)

// callSession is one in-progress signaling exchange between two users.
// Participant-to-connection resolution happens per event through the router,
// never through a connection reference captured here: a participant may
// reconnect mid-call.
type callSession struct {
	room      domain.RoomID
	caller    domain.UserID
	callee    domain.UserID
	state     callState
	createdAt time.Time
	timer     *time.Timer
}

func (s *callSession) peer(u domain.UserID) (domain.UserID, bool) {
	switch u {
	case s.caller:
		return s.callee, true
	case s.callee:
		return s.caller, true
	}
	return "", false
}

// CallManager owns the session table and the Idle/Offered/Active lifecycle.
// The table is process-local and owned by the node that processed the offer;
// signaling arriving on any other node is escalated over the call-control
// topic so the owner can drive the state machine. All notifications go out
// after the table lock is released.
type CallManager struct {
	node     string
	bus      core.Bus
	router   *Router
	offerTTL time.Duration

	mu       sync.Mutex
	sessions map[domain.RoomID]*callSession
}

func NewCallManager(node string, bus core.Bus, router *Router, offerTTL time.Duration) *CallManager {
	return &CallManager{
		node:     node,
		bus:      bus,
		router:   router,
		offerTTL: offerTTL,
		sessions: make(map[domain.RoomID]*callSession),
	}
}

// Start subscribes to the call-control topic. Escalated events are applied
// strictly locally: only the node holding the session in its table acts, so
// an event for a room nobody owns dies out, and nothing is re-escalated.
func (m *CallManager) Start(ctx context.Context) error {
	return m.bus.Subscribe(ctx, relay.TopicCalls, func(payload []byte) {
		var ev relay.CallControl
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Error().Err(err).Str("module", "app.calls").Msg("bad call-control payload")
			return
		}
		if ev.Origin == m.node {
			return
		}
		m.applyControl(ctx, ev)
	})
}

func (m *CallManager) applyControl(ctx context.Context, ev relay.CallControl) {
	switch ev.Action {
	case relay.CallActionAnswer:
		var a domain.CallAnswer
		if err := json.Unmarshal(ev.Payload, &a); err != nil {
			log.Error().Err(err).Str("module", "app.calls").Msg("bad answer control")
			return
		}
		m.applyAnswer(ctx, a)
	case relay.CallActionCandidate:
		var c domain.ICECandidate
		if err := json.Unmarshal(ev.Payload, &c); err != nil {
			log.Error().Err(err).Str("module", "app.calls").Msg("bad candidate control")
			return
		}
		m.applyCandidate(ctx, c)
	case relay.CallActionAccept:
		m.applyAccept(ctx, ev.Room, ev.From)
	case relay.CallActionReject:
		m.applyReject(ctx, ev.Room, ev.From)
	case relay.CallActionEnd:
		m.applyEnd(ctx, ev.Room, ev.From)
	case relay.CallActionDisconnect:
		m.applyDisconnect(ctx, ev.From)
	default:
		log.Warn().Str("module", "app.calls").Str("action", ev.Action).Msg("unknown call control")
	}
}

// escalate hands an event for a room this node does not own to the bus.
// Best effort: if no node owns the room the event dies out, same as an
// unknown room on a single process.
func (m *CallManager) escalate(ctx context.Context, action string, room domain.RoomID, from domain.UserID, payload any) bool {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("module", "app.calls").Msg("marshal call control payload")
			return false
		}
		raw = b
	}
	msg, err := json.Marshal(relay.CallControl{Origin: m.node, Action: action, Room: room, From: from, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("module", "app.calls").Msg("marshal call control")
		return false
	}
	if err := m.bus.Publish(ctx, relay.TopicCalls, msg); err != nil {
		log.Warn().Err(err).Str("module", "app.calls").Str("action", action).Msg("call control publish failed")
		return false
	}
	log.Debug().Str("module", "app.calls").Str("room", string(room)).Str("action", action).Msg("escalated to session owner")
	return true
}

func (m *CallManager) owns(room domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[room]
	return ok
}

// Offer creates the session if the room is not yet known and forwards the
// offer to the callee. Check-and-create is atomic: with simultaneous offers
// for the same pair, the first one processed creates the session and the
// other is dropped.
func (m *CallManager) Offer(ctx context.Context, o domain.CallOffer) (domain.RoomID, bool) {
	room := o.Room
	if room == "" {
		room = domain.CallRoomID(o.From, o.To)
	}
	o.Room = room

	m.mu.Lock()
	if _, exists := m.sessions[room]; exists {
		m.mu.Unlock()
		log.Warn().Str("module", "app.calls").Str("room", string(room)).Str("from", string(o.From)).Msg("duplicate offer dropped")
		return room, false
	}
	s := &callSession{
		room:      room,
		caller:    o.From,
		callee:    o.To,
		state:     callOffered,
		createdAt: time.Now(),
	}
	s.timer = time.AfterFunc(m.offerTTL, func() { m.expire(room) })
	m.sessions[room] = s
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("room", string(room)).Str("caller", string(o.From)).Str("callee", string(o.To)).Msg("call offered")
	m.router.Route(ctx, domain.KindCallOffer, o.To, o)
	return room, true
}

// Answer moves an Offered session to Active exactly once and forwards the
// answer to the caller. A room not in the local table is escalated to the
// owning node; answers from the wrong party or for an already-Active session
// are no-ops.
func (m *CallManager) Answer(ctx context.Context, a domain.CallAnswer) bool {
	room := a.Room
	if room == "" {
		room = domain.CallRoomID(a.From, a.To)
	}
	a.Room = room

	if !m.owns(room) {
		return m.escalate(ctx, relay.CallActionAnswer, room, a.From, a)
	}
	return m.applyAnswer(ctx, a)
}

func (m *CallManager) applyAnswer(ctx context.Context, a domain.CallAnswer) bool {
	m.mu.Lock()
	s, ok := m.sessions[a.Room]
	if !ok || s.state != callOffered || a.From != s.callee {
		m.mu.Unlock()
		log.Warn().Str("module", "app.calls").Str("room", string(a.Room)).Str("from", string(a.From)).Msg("answer dropped")
		return false
	}
	s.state = callActive
	s.timer.Stop()
	caller := s.caller
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("room", string(a.Room)).Msg("call active")
	m.router.Route(ctx, domain.KindCallAnswer, caller, a)
	return true
}

// Candidate forwards an ICE candidate to the addressed peer, after the
// session owner validated the sender belongs to the room.
func (m *CallManager) Candidate(ctx context.Context, c domain.ICECandidate) bool {
	if !m.owns(c.Room) {
		return m.escalate(ctx, relay.CallActionCandidate, c.Room, c.From, c)
	}
	return m.applyCandidate(ctx, c)
}

func (m *CallManager) applyCandidate(ctx context.Context, c domain.ICECandidate) bool {
	m.mu.Lock()
	s, ok := m.sessions[c.Room]
	var member bool
	if ok {
		_, member = s.peer(c.From)
	}
	m.mu.Unlock()
	if !ok || !member {
		log.Warn().Str("module", "app.calls").Str("room", string(c.Room)).Msg("candidate for unknown room dropped")
		return false
	}
	return m.router.Route(ctx, domain.KindICECandidate, c.To, c)
}

// Accept is the consent entry point invoked by the collaborator after the
// callee agreed to take the call. It only notifies the peer; the session
// turns Active on the SDP answer.
func (m *CallManager) Accept(ctx context.Context, room domain.RoomID, participant domain.UserID) bool {
	if !m.owns(room) {
		return m.escalate(ctx, relay.CallActionAccept, room, participant, nil)
	}
	return m.applyAccept(ctx, room, participant)
}

func (m *CallManager) applyAccept(ctx context.Context, room domain.RoomID, participant domain.UserID) bool {
	m.mu.Lock()
	s, ok := m.sessions[room]
	var peer domain.UserID
	if ok {
		peer, ok = s.peer(participant)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.router.Route(ctx, domain.KindCallAccepted, peer, domain.CallAccepted{Room: room, Participant: participant})
}

// Reject discards the session and informs the peer.
func (m *CallManager) Reject(ctx context.Context, room domain.RoomID, participant domain.UserID) bool {
	if !m.owns(room) {
		return m.escalate(ctx, relay.CallActionReject, room, participant, nil)
	}
	return m.applyReject(ctx, room, participant)
}

func (m *CallManager) applyReject(ctx context.Context, room domain.RoomID, participant domain.UserID) bool {
	m.mu.Lock()
	s, ok := m.sessions[room]
	var peer domain.UserID
	if ok {
		peer, ok = s.peer(participant)
	}
	if ok {
		s.timer.Stop()
		delete(m.sessions, room)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	log.Info().Str("module", "app.calls").Str("room", string(room)).Str("by", string(participant)).Msg("call rejected")
	return m.router.Route(ctx, domain.KindCallRejected, peer, domain.CallRejected{Room: room, Participant: participant})
}

// End tears the session down on an explicit hangup from either party and
// notifies the other one.
func (m *CallManager) End(ctx context.Context, room domain.RoomID, from domain.UserID) bool {
	if !m.owns(room) {
		return m.escalate(ctx, relay.CallActionEnd, room, from, nil)
	}
	return m.applyEnd(ctx, room, from)
}

func (m *CallManager) applyEnd(ctx context.Context, room domain.RoomID, from domain.UserID) bool {
	m.mu.Lock()
	s, ok := m.sessions[room]
	var peer domain.UserID
	if ok {
		peer, ok = s.peer(from)
	}
	var age time.Duration
	if ok {
		s.timer.Stop()
		age = time.Since(s.createdAt)
		delete(m.sessions, room)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	log.Info().Str("module", "app.calls").Str("room", string(room)).Str("by", string(from)).Dur("age", age).Msg("call ended")
	return m.router.Route(ctx, domain.KindCallEnded, peer, domain.CallEnded{Room: room, Reason: "hangup"})
}

// HandleDisconnect ends every session the user participates in and notifies
// the other party. The disconnecting node may not own the session, so the
// teardown is also escalated for the owner to apply.
func (m *CallManager) HandleDisconnect(ctx context.Context, user domain.UserID) {
	m.applyDisconnect(ctx, user)
	m.escalate(ctx, relay.CallActionDisconnect, "", user, nil)
}

func (m *CallManager) applyDisconnect(ctx context.Context, user domain.UserID) {
	type ended struct {
		room domain.RoomID
		peer domain.UserID
	}
	var gone []ended

	m.mu.Lock()
	for room, s := range m.sessions {
		if peer, ok := s.peer(user); ok {
			s.timer.Stop()
			delete(m.sessions, room)
			gone = append(gone, ended{room: room, peer: peer})
		}
	}
	m.mu.Unlock()

	for _, e := range gone {
		log.Info().Str("module", "app.calls").Str("room", string(e.room)).Str("user", string(user)).Msg("call ended by disconnect")
		m.router.Route(ctx, domain.KindCallEnded, e.peer, domain.CallEnded{Room: e.room, Reason: "peer-disconnected"})
	}
}

// Session reports the participants of a known room, mostly for tests and
// diagnostics.
func (m *CallManager) Session(room domain.RoomID) (caller, callee domain.UserID, active, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[room]
	if !found {
		return "", "", false, false
	}
	return s.caller, s.callee, s.state == callActive, true
}

// expire fires when an Offered session saw no answer within the window.
func (m *CallManager) expire(room domain.RoomID) {
	m.mu.Lock()
	s, ok := m.sessions[room]
	if !ok || s.state != callOffered {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, room)
	caller := s.caller
	age := time.Since(s.createdAt)
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("room", string(room)).Dur("age", age).Msg("offer timed out")
	m.router.Route(context.Background(), domain.KindCallTimeout, caller, domain.CallEnded{Room: room, Reason: "no-answer"})
}
