package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/webcall/internal/app"
	"github.com/dkeye/webcall/internal/config"
	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Engine *app.Engine

	readLimit    int64
	pingPeriod   time.Duration
	pongWait     time.Duration
	writeTimeout time.Duration
	sendBuffer   int
}

func NewSignalWSController(engine *app.Engine, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Engine:       engine,
		readLimit:    cfg.ReadLimit,
		pingPeriod:   cfg.PingPeriod,
		pongWait:     cfg.PongWait(),
		writeTimeout: cfg.WriteTimeout,
		sendBuffer:   cfg.SendBuffer,
	}
}

// WsSignalConn is one accepted WebSocket. It implements core.Conn.
type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and hands the connection to the engine.
// The group key is the client address as seen by gin.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	key, err := domain.NewGroupKey(c.ClientIP())
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("no client address")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}
	pid := ctl.Engine.OnConnect(conn, key)
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Int64("participant", int64(pid)).Str("group", string(key)).Msg("new WS connection")

	ctl.serve(ctx, conn)
}

// serve starts the pumps of a connection already known to the engine.
// Cancelling ctx closes the socket.
func (ctl *SignalWSController) serve(ctx context.Context, conn *WsSignalConn) {
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(cancel, conn)
}
