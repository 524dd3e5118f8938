package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
	"github.com/okatev/pulse/internal/relay"
)

// Presence derives the global online set from registry snapshots exchanged
// over the relay. Each process republishes its full local snapshot on every
// change and once per heartbeat; remote snapshots not refreshed within three
// heartbeats are considered gone (covers a process that crashed without a
// final empty announce).
type Presence struct {
	node      string
	bus       core.Bus
	reg       *Registry
	heartbeat time.Duration

	mu     sync.Mutex
	remote map[string]nodeSnap
}

type nodeSnap struct {
	users []domain.UserID
	seen  time.Time
}

func NewPresence(node string, bus core.Bus, reg *Registry, heartbeat time.Duration) *Presence {
	return &Presence{
		node:      node,
		bus:       bus,
		reg:       reg,
		heartbeat: heartbeat,
		remote:    make(map[string]nodeSnap),
	}
}

// Start subscribes to the presence topic and begins the heartbeat republish.
func (p *Presence) Start(ctx context.Context) error {
	if err := p.bus.Subscribe(ctx, relay.TopicPresence, p.onSnapshot); err != nil {
		return err
	}
	go func() {
		t := time.NewTicker(p.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.Announce(ctx)
			}
		}
	}()
	return nil
}

// Announce publishes the local snapshot and pushes the recomputed global set
// to every locally connected client. Called on register, unregister, and
// each heartbeat tick; republishing an unchanged snapshot is harmless.
func (p *Presence) Announce(ctx context.Context) {
	snap := relay.Snapshot{
		Node:   p.node,
		Users:  p.reg.Snapshot(),
		SentAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("marshal snapshot")
		return
	}
	if err := p.bus.Publish(ctx, relay.TopicPresence, payload); err != nil {
		// Degraded mode: cross-process presence stops propagating but
		// local connections stay usable.
		log.Warn().Err(err).Str("module", "app.presence").Msg("publish snapshot")
	}
	p.pushLocal()
}

func (p *Presence) onSnapshot(payload []byte) {
	var snap relay.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("bad snapshot payload")
		return
	}
	if snap.Node == p.node {
		// Local users come straight from the registry.
		return
	}
	p.mu.Lock()
	p.remote[snap.Node] = nodeSnap{users: snap.Users, seen: time.Now()}
	p.mu.Unlock()
	p.pushLocal()
}

// Online returns the union of the local registry and all live remote
// snapshots, sorted for stable output.
func (p *Presence) Online() []domain.UserID {
	set := make(map[domain.UserID]struct{})
	for _, u := range p.reg.Snapshot() {
		set[u] = struct{}{}
	}

	cutoff := time.Now().Add(-3 * p.heartbeat)
	p.mu.Lock()
	for node, snap := range p.remote {
		if snap.seen.Before(cutoff) {
			delete(p.remote, node)
			continue
		}
		for _, u := range snap.users {
			set[u] = struct{}{}
		}
	}
	p.mu.Unlock()

	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports whether the user has a live connection anywhere visible
// to this process.
func (p *Presence) IsOnline(user domain.UserID) bool {
	for _, u := range p.Online() {
		if u == user {
			return true
		}
	}
	return false
}

func (p *Presence) pushLocal() {
	frame, err := core.Encode(domain.KindOnlineUsers, domain.OnlineUsers{Users: p.Online()})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode online set")
		return
	}
	for _, conn := range p.reg.Connections() {
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Str("module", "app.presence").Str("conn", string(conn.ID())).Msg("dropped presence frame")
		}
	}
}
