package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okatev/pulse/internal/domain"
	"github.com/okatev/pulse/internal/relay"
)

func TestPresence_UnionAcrossNodes(t *testing.T) {
	bus := relay.NewMemoryBus()
	ctx := context.Background()

	regA := NewRegistry()
	regB := NewRegistry()
	pA := NewPresence("node-a", bus, regA, time.Minute)
	pB := NewPresence("node-b", bus, regB, time.Minute)
	require.NoError(t, bus.Subscribe(ctx, relay.TopicPresence, pA.onSnapshot))
	require.NoError(t, bus.Subscribe(ctx, relay.TopicPresence, pB.onSnapshot))

	regA.Register("alice", newFakeConn("alice", "a1"))
	pA.Announce(ctx)
	regB.Register("bob", newFakeConn("bob", "b1"))
	pB.Announce(ctx)

	assert.Equal(t, []domain.UserID{"alice", "bob"}, pA.Online())
	assert.Equal(t, []domain.UserID{"alice", "bob"}, pB.Online())
}

func TestPresence_RepublishIsIdempotent(t *testing.T) {
	bus := relay.NewMemoryBus()
	ctx := context.Background()

	regA := NewRegistry()
	regB := NewRegistry()
	pB := NewPresence("node-b", bus, regB, time.Minute)
	require.NoError(t, bus.Subscribe(ctx, relay.TopicPresence, pB.onSnapshot))

	pA := NewPresence("node-a", bus, regA, time.Minute)
	regA.Register("alice", newFakeConn("alice", "a1"))

	pA.Announce(ctx)
	first := pB.Online()
	pA.Announce(ctx)
	second := pB.Online()

	assert.Equal(t, first, second)
	assert.Equal(t, []domain.UserID{"alice"}, second)
}

func TestPresence_DisconnectShrinksGlobalSet(t *testing.T) {
	bus := relay.NewMemoryBus()
	ctx := context.Background()

	regA := NewRegistry()
	regB := NewRegistry()
	pA := NewPresence("node-a", bus, regA, time.Minute)
	pB := NewPresence("node-b", bus, regB, time.Minute)
	require.NoError(t, bus.Subscribe(ctx, relay.TopicPresence, pB.onSnapshot))

	regA.Register("alice", newFakeConn("alice", "a1"))
	pA.Announce(ctx)
	require.Equal(t, []domain.UserID{"alice"}, pB.Online())

	regA.Unregister("alice", "a1")
	pA.Announce(ctx)
	assert.Empty(t, pB.Online())
}

func TestPresence_StaleNodeExpires(t *testing.T) {
	bus := relay.NewMemoryBus()
	ctx := context.Background()

	regA := NewRegistry()
	regB := NewRegistry()
	heartbeat := 10 * time.Millisecond
	pA := NewPresence("node-a", bus, regA, heartbeat)
	pB := NewPresence("node-b", bus, regB, heartbeat)
	require.NoError(t, bus.Subscribe(ctx, relay.TopicPresence, pB.onSnapshot))

	regA.Register("alice", newFakeConn("alice", "a1"))
	pA.Announce(ctx)
	require.Equal(t, []domain.UserID{"alice"}, pB.Online())

	// node-a goes silent: no heartbeat within three intervals.
	assert.Eventually(t, func() bool {
		return len(pB.Online()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPresence_PushesOnlineSetToLocalClients(t *testing.T) {
	bus := relay.NewMemoryBus()
	ctx := context.Background()

	reg := NewRegistry()
	p := NewPresence("node-a", bus, reg, time.Minute)

	conn := newFakeConn("alice", "a1")
	reg.Register("alice", conn)
	p.Announce(ctx)

	require.Equal(t, []string{"getOnlineUsers"}, conn.kinds(t))
	var got domain.OnlineUsers
	conn.lastFrame(t, &got)
	assert.Equal(t, []domain.UserID{"alice"}, got.Users)
}
