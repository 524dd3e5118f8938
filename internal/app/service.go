package app

import (
	"context"
	"time"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
)

// Service wires the registry, presence tracker, router, and call manager
// together and is the single surface both the WebSocket adapter and the
// REST collaborators talk to.
type Service struct {
	Registry *Registry
	Presence *Presence
	Router   *Router
	Calls    *CallManager
}

func NewService(node string, bus core.Bus, offerTTL, heartbeat time.Duration) *Service {
	reg := NewRegistry()
	presence := NewPresence(node, bus, reg, heartbeat)
	router := NewRouter(node, reg, bus, presence)
	return &Service{
		Registry: reg,
		Presence: presence,
		Router:   router,
		Calls:    NewCallManager(node, bus, router, offerTTL),
	}
}

// Start brings up the relay subscriptions and the presence heartbeat.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Presence.Start(ctx); err != nil {
		return err
	}
	if err := s.Router.Start(ctx); err != nil {
		return err
	}
	return s.Calls.Start(ctx)
}

// HandleConnect registers the connection and broadcasts the new online set.
// A displaced older connection from the same user is returned for the
// transport layer to close.
func (s *Service) HandleConnect(ctx context.Context, conn core.Connection) core.Connection {
	prev := s.Registry.Register(conn.User(), conn)
	s.Presence.Announce(ctx)
	return prev
}

// HandleDisconnect unregisters (guarded by connection id), ends any call the
// user was in, and broadcasts the shrunk online set. Safe to call more than
// once for the same connection.
func (s *Service) HandleDisconnect(ctx context.Context, user domain.UserID, id core.ConnID) {
	if !s.Registry.Unregister(user, id) {
		return
	}
	s.Calls.HandleDisconnect(ctx, user)
	s.Presence.Announce(ctx)
}

// Notify is the collaborator-facing delivery entry point: best effort, false
// when the user has no live connection visible to this process.
func (s *Service) Notify(ctx context.Context, user domain.UserID, kind domain.EventKind, payload any) bool {
	return s.Router.Route(ctx, kind, user, payload)
}

// CurrentOnlineUsers returns the global online set as observed here.
func (s *Service) CurrentOnlineUsers() []domain.UserID {
	return s.Presence.Online()
}

// Typing forwards a typing indicator to the recipient.
func (s *Service) Typing(ctx context.Context, t domain.Typing) bool {
	return s.Router.Route(ctx, domain.KindTyping, t.To, t)
}
