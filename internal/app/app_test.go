package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
)

// fakeConn records everything enqueued on it.
type fakeConn struct {
	id   core.ConnID
	user domain.UserID

	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func newFakeConn(user domain.UserID, id core.ConnID) *fakeConn {
	return &fakeConn{id: id, user: user}
}

func (c *fakeConn) ID() core.ConnID     { return c.id }
func (c *fakeConn) User() domain.UserID { return c.user }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// kinds returns the "type" field of every recorded frame, in order.
func (c *fakeConn) kinds(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Type)
	}
	return out
}

// lastFrame decodes the most recent frame into dst.
func (c *fakeConn) lastFrame(t *testing.T, dst any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], dst))
}

func (c *fakeConn) allFrames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func jsonInto(f core.Frame, dst any) error {
	return json.Unmarshal(f, dst)
}
