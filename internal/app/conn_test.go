package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/protocol"
)

// fakeConn records every frame it is asked to send.
type fakeConn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: core.ConnID(id)}
}

func (c *fakeConn) ID() core.ConnID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// drain returns the frames received since the last drain.
func (c *fakeConn) drain() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type decoded struct {
	Type    protocol.Type          `json:"type"`
	ID      *int64                 `json:"id"`
	Clients []protocol.RosterEntry `json:"clients"`
}

// messages decodes the text frames received since the last drain.
func (c *fakeConn) messages() []decoded {
	var out []decoded
	for _, f := range c.drain() {
		if f.Kind != core.TextFrame {
			continue
		}
		var d decoded
		if err := json.Unmarshal(f.Payload, &d); err != nil {
			panic(err)
		}
		out = append(out, d)
	}
	return out
}

func types(msgs []decoded) []protocol.Type {
	out := make([]protocol.Type, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func text(s string) core.Frame { return core.Text([]byte(s)) }
