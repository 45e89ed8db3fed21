package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/webcall/internal/app"
	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/dkeye/webcall/internal/mocks"
	"github.com/dkeye/webcall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const group domain.GroupKey = "10.0.0.1"

type outMsg struct {
	Type    protocol.Type          `json:"type"`
	Clients []protocol.RosterEntry `json:"clients"`
}

// wsPair returns both ends of a real WebSocket: the server side and the client.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-accepted:
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never accepted")
		return nil, nil
	}
}

func newController(e *app.Engine, pingPeriod, pongWait time.Duration) *SignalWSController {
	return &SignalWSController{
		Engine:       e,
		readLimit:    65536,
		pingPeriod:   pingPeriod,
		pongWait:     pongWait,
		writeTimeout: time.Second,
		sendBuffer:   16,
	}
}

// listener joins a mock member to the group and returns every frame sent to it
// after its own join replies.
func listener(t *testing.T, e *app.Engine) <-chan core.Frame {
	t.Helper()
	ctrl := gomock.NewController(t)
	frames := make(chan core.Frame, 64)
	m := mocks.NewMockConn(ctrl)
	m.EXPECT().ID().Return(core.ConnID("listener")).AnyTimes()
	m.EXPECT().TrySend(gomock.Any()).DoAndReturn(func(f core.Frame) error {
		frames <- f
		return nil
	}).AnyTimes()
	m.EXPECT().Close().AnyTimes()

	e.OnConnect(m, group)
	e.OnMessage("listener", core.Text([]byte(`{"type":"join","username":"lena"}`)))
	for _, want := range []protocol.Type{protocol.TypeJoined, protocol.TypeClients, protocol.TypeSpeaker} {
		require.Equal(t, want, nextMsg(t, frames).Type)
	}
	return frames
}

func nextMsg(t *testing.T, frames <-chan core.Frame) outMsg {
	t.Helper()
	select {
	case f := <-frames:
		var m outMsg
		require.NoError(t, json.Unmarshal(f.Payload, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return outMsg{}
	}
}

func requireQuiet(t *testing.T, frames <-chan core.Frame, d time.Duration) {
	t.Helper()
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame %s", f.Payload)
	case <-time.After(d):
	}
}

// connect registers the server side of a fresh pair and joins it as "vic".
func connect(t *testing.T, ctl *SignalWSController, frames <-chan core.Frame) (*WsSignalConn, *websocket.Conn, context.CancelFunc) {
	t.Helper()
	srvWS, client := wsPair(t)
	conn := &WsSignalConn{id: "victim", conn: srvWS, send: make(chan core.Frame, ctl.sendBuffer)}
	ctl.Engine.OnConnect(conn, group)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctl.serve(ctx, conn)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","username":"vic"}`)))
	require.Len(t, nextMsg(t, frames).Clients, 2)
	return conn, client, cancel
}

func TestWsSignalConn_TrySend(t *testing.T) {
	req := require.New(t)
	srvWS, _ := wsPair(t)
	conn := &WsSignalConn{id: "c", conn: srvWS, send: make(chan core.Frame, 1)}

	req.NoError(conn.TrySend(core.Text([]byte("a"))))
	req.ErrorIs(conn.TrySend(core.Text([]byte("b"))), core.ErrBackpressure)

	conn.Close()
	conn.Close()
	req.ErrorIs(conn.TrySend(core.Text([]byte("c"))), core.ErrConnClosed)
}

func TestReadPump_CloseFromServerDisconnectsOnce(t *testing.T) {
	req := require.New(t)
	e := app.NewEngine()
	frames := listener(t, e)
	conn, _, _ := connect(t, newController(e, time.Minute, time.Minute), frames)

	// When the server drops the member, as a kicking policy does
	conn.Close()

	// Then the rest of the group sees a single roster update
	roster := nextMsg(t, frames)
	req.Equal(protocol.TypeClients, roster.Type)
	req.Len(roster.Clients, 1)
	req.Equal("lena", roster.Clients[0].Username)
	requireQuiet(t, frames, 200*time.Millisecond)
	req.ErrorIs(conn.TrySend(core.Text([]byte("late"))), core.ErrConnClosed)
}

func TestWritePump_ContextDoneClosesBothPumps(t *testing.T) {
	req := require.New(t)
	e := app.NewEngine()
	frames := listener(t, e)
	_, client, cancel := connect(t, newController(e, time.Minute, time.Minute), frames)
	req.NoError(client.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for i := 0; i < 3; i++ {
		_, _, err := client.ReadMessage()
		req.NoError(err)
	}

	// Given the member holds the floor
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"request_talk"}`)))
	req.Equal(protocol.TypeSpeaker, nextMsg(t, frames).Type)
	_, _, err := client.ReadMessage()
	req.NoError(err)

	// When the server shuts the connection down
	cancel()

	// Then the client gets a going-away close
	_, _, err = client.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)

	// And the group hears about it exactly once
	req.Equal(protocol.TypeSpeaker, nextMsg(t, frames).Type)
	req.Len(nextMsg(t, frames).Clients, 1)
	requireQuiet(t, frames, 200*time.Millisecond)
	_, held := e.CurrentHolder(group)
	req.False(held)
}

func TestReadPump_PongKeepsConnectionAlive(t *testing.T) {
	req := require.New(t)
	e := app.NewEngine()
	frames := listener(t, e)
	_, client, _ := connect(t, newController(e, 20*time.Millisecond, 200*time.Millisecond), frames)

	// The client's read loop answers pings
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	requireQuiet(t, frames, 600*time.Millisecond)
	groups := e.Groups()
	req.Len(groups, 1)
	req.Equal(2, groups[0].Members)
}

func TestReadPump_MissingPongDisconnects(t *testing.T) {
	req := require.New(t)
	e := app.NewEngine()
	frames := listener(t, e)

	// Given a client that never reads, so never answers a ping
	connect(t, newController(e, 20*time.Millisecond, 200*time.Millisecond), frames)

	// Then the read deadline expires and the member is dropped
	roster := nextMsg(t, frames)
	req.Equal(protocol.TypeClients, roster.Type)
	req.Len(roster.Clients, 1)
	requireQuiet(t, frames, 200*time.Millisecond)
}
