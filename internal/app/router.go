package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
	"github.com/okatev/pulse/internal/relay"
)

// Router resolves the destination connection for an addressed event. A local
// registry hit is delivered with a non-blocking enqueue; a miss is escalated
// to the relay so the process holding the destination's connection can
// deliver it. Per (from, to) ordering holds because each connection's
// outbound path is a single-consumer queue and the bus preserves
// per-publisher order.
type Router struct {
	node     string
	reg      *Registry
	bus      core.Bus
	presence *Presence
}

func NewRouter(node string, reg *Registry, bus core.Bus, presence *Presence) *Router {
	return &Router{node: node, reg: reg, bus: bus, presence: presence}
}

// Start subscribes to the addressed-events topic. Events originating from
// this node are skipped: they were already delivered (or found undeliverable)
// before being published.
func (rt *Router) Start(ctx context.Context) error {
	return rt.bus.Subscribe(ctx, relay.TopicEvents, func(payload []byte) {
		var ev relay.Addressed
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Error().Err(err).Str("module", "app.router").Msg("bad addressed payload")
			return
		}
		if ev.Origin == rt.node {
			return
		}
		conn, ok := rt.reg.Lookup(ev.To)
		if !ok {
			return
		}
		rt.deliver(conn, ev.Kind, ev.Payload)
	})
}

// Route delivers the event to the destination user. Returns true when the
// event reached a local connection or was relayed toward a process known to
// hold one; false when the destination has no live connection anywhere
// visible to this process.
func (rt *Router) Route(ctx context.Context, kind domain.EventKind, to domain.UserID, payload any) bool {
	if conn, ok := rt.reg.Lookup(to); ok {
		rt.deliver(conn, kind, payload)
		return true
	}
	if !rt.presence.IsOnline(to) {
		log.Debug().Str("module", "app.router").Str("to", string(to)).Str("kind", string(kind)).Msg("destination offline, dropped")
		return false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("marshal payload")
		return false
	}
	msg, err := json.Marshal(relay.Addressed{Origin: rt.node, To: to, Kind: kind, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("marshal addressed event")
		return false
	}
	if err := rt.bus.Publish(ctx, relay.TopicEvents, msg); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("to", string(to)).Msg("relay publish failed")
		return false
	}
	return true
}

func (rt *Router) deliver(conn core.Connection, kind domain.EventKind, payload any) {
	frame, err := core.Encode(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode frame")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Str("module", "app.router").Str("conn", string(conn.ID())).Str("kind", string(kind)).Msg("dropped frame")
	}
}
