package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
)

// Registry is the per-process mapping from user identity to its live
// connection. Connection handles are owned by the accepting adapter; the
// registry only stores and resolves them, never closes them.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.Connection)}
}

// Register binds the identity to the connection. Last write wins: a newer
// connection from the same user replaces the older mapping. The displaced
// connection (if any) is returned so the transport layer can close it.
func (r *Registry) Register(user domain.UserID, conn core.Connection) core.Connection {
	r.mu.Lock()
	prev := r.conns[user]
	r.conns[user] = conn
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("conn", string(conn.ID())).Msg("registered")
	return prev
}

// Unregister removes the mapping only if the stored connection is the one
// the caller's disconnect handler was attached to. A stale disconnect racing
// a newer registration is a no-op.
func (r *Registry) Unregister(user domain.UserID, id core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[user]
	if !ok || cur.ID() != id {
		return false
	}
	delete(r.conns, user)
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("conn", string(id)).Msg("unregistered")
	return true
}

func (r *Registry) Lookup(user domain.UserID) (core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[user]
	return conn, ok
}

// Snapshot returns all identities currently registered on this process.
func (r *Registry) Snapshot() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.conns))
	for user := range r.conns {
		out = append(out, user)
	}
	return out
}

// Connections returns the live connection handles, for local broadcast.
func (r *Registry) Connections() []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}
