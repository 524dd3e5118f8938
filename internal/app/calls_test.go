package app

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okatev/pulse/internal/domain"
	"github.com/okatev/pulse/internal/relay"
)

func newCallFixture(t *testing.T, offerTTL time.Duration) (*CallManager, *fakeConn, *fakeConn) {
	t.Helper()
	bus := relay.NewMemoryBus()
	reg, _, router := newTestNode(t, "node-a", bus)
	cm := NewCallManager("node-a", bus, router, offerTTL)
	require.NoError(t, cm.Start(context.Background()))

	alice := newFakeConn("alice", "a1")
	bob := newFakeConn("bob", "b1")
	reg.Register("alice", alice)
	reg.Register("bob", bob)
	return cm, alice, bob
}

func testOffer() domain.CallOffer {
	return domain.CallOffer{
		From: "alice",
		To:   "bob",
		SDP:  webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}
}

func TestCalls_OfferThenAnswer(t *testing.T) {
	cm, alice, bob := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, created := cm.Offer(ctx, testOffer())
	require.True(t, created)
	assert.Equal(t, domain.CallRoomID("alice", "bob"), room)
	assert.Equal(t, []string{"call-offer"}, bob.kinds(t))

	_, _, active, ok := cm.Session(room)
	require.True(t, ok)
	assert.False(t, active)

	answered := cm.Answer(ctx, domain.CallAnswer{
		From: "bob", To: "alice", Room: room,
		SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	})
	require.True(t, answered)
	assert.Equal(t, []string{"call-answer"}, alice.kinds(t))

	_, _, active, ok = cm.Session(room)
	require.True(t, ok)
	assert.True(t, active)
}

func TestCalls_SecondAnswerIsNoop(t *testing.T) {
	cm, alice, _ := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	answer := domain.CallAnswer{From: "bob", To: "alice", Room: room}

	require.True(t, cm.Answer(ctx, answer))
	assert.False(t, cm.Answer(ctx, answer))
	assert.Equal(t, []string{"call-answer"}, alice.kinds(t), "caller sees exactly one answer")
}

func TestCalls_AnswerFromWrongPartyIgnored(t *testing.T) {
	cm, _, _ := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	assert.False(t, cm.Answer(ctx, domain.CallAnswer{From: "mallory", To: "alice", Room: room}))
}

func TestCalls_SimultaneousOfferCreatesOneSession(t *testing.T) {
	cm, _, _ := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room1, created1 := cm.Offer(ctx, testOffer())
	// Reverse direction derives the same canonical room.
	room2, created2 := cm.Offer(ctx, domain.CallOffer{From: "bob", To: "alice"})

	assert.Equal(t, room1, room2)
	assert.True(t, created1)
	assert.False(t, created2)

	caller, callee, _, ok := cm.Session(room1)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), caller)
	assert.Equal(t, domain.UserID("bob"), callee)
}

func TestCalls_OfferTimeout(t *testing.T) {
	cm, alice, _ := newCallFixture(t, 20*time.Millisecond)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())

	require.Eventually(t, func() bool {
		_, _, _, ok := cm.Session(room)
		return !ok
	}, time.Second, 5*time.Millisecond, "offered session must expire")

	assert.Contains(t, alice.kinds(t), "call-timeout")
}

func TestCalls_AnswerStopsTimeout(t *testing.T) {
	cm, alice, _ := newCallFixture(t, 20*time.Millisecond)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	require.True(t, cm.Answer(ctx, domain.CallAnswer{From: "bob", To: "alice", Room: room}))

	time.Sleep(60 * time.Millisecond)
	_, _, active, ok := cm.Session(room)
	require.True(t, ok, "active session must survive the offer window")
	assert.True(t, active)
	assert.NotContains(t, alice.kinds(t), "call-timeout")
}

func TestCalls_EndNotifiesPeer(t *testing.T) {
	cm, _, bob := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	cm.Answer(ctx, domain.CallAnswer{From: "bob", To: "alice", Room: room})

	require.True(t, cm.End(ctx, room, "alice"))
	assert.Contains(t, bob.kinds(t), "call-ended")

	_, _, _, ok := cm.Session(room)
	assert.False(t, ok)
}

func TestCalls_RejectDiscardsSession(t *testing.T) {
	cm, alice, _ := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	require.True(t, cm.Reject(ctx, room, "bob"))

	var rejected domain.CallRejected
	alice.lastFrame(t, &rejected)
	assert.Equal(t, domain.UserID("bob"), rejected.Participant)

	_, _, _, ok := cm.Session(room)
	assert.False(t, ok)
}

func TestCalls_AcceptNotifiesPeer(t *testing.T) {
	cm, alice, _ := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	require.True(t, cm.Accept(ctx, room, "bob"))
	assert.Contains(t, alice.kinds(t), "call-accepted")
}

func TestCalls_DisconnectEndsSession(t *testing.T) {
	cm, _, bob := newCallFixture(t, time.Minute)
	ctx := context.Background()

	room, _ := cm.Offer(ctx, testOffer())
	cm.Answer(ctx, domain.CallAnswer{From: "bob", To: "alice", Room: room})

	cm.HandleDisconnect(ctx, "alice")

	_, _, _, ok := cm.Session(room)
	assert.False(t, ok)
	assert.Contains(t, bob.kinds(t), "call-ended")
}

func TestCalls_CandidateRequiresKnownRoom(t *testing.T) {
	cm, _, bob := newCallFixture(t, time.Minute)
	ctx := context.Background()

	// Unknown room: escalated for another node to pick up, but nothing is
	// delivered locally until a session owner validates it.
	cand := domain.ICECandidate{
		From: "alice", To: "bob", Room: "nope",
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:0"},
	}
	cm.Candidate(ctx, cand)
	assert.NotContains(t, bob.kinds(t), "ice-candidate")

	room, _ := cm.Offer(ctx, testOffer())
	cand.Room = room
	require.True(t, cm.Candidate(ctx, cand))
	assert.Contains(t, bob.kinds(t), "ice-candidate")
}
