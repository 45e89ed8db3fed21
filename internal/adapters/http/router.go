package http

import (
	"context"
	"net/http"

	"github.com/dkeye/webcall/internal/adapters/signal"
	"github.com/dkeye/webcall/internal/app"
	"github.com/dkeye/webcall/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const healthText = "WebCall WebSocket server running"

// SetupRouter wires the WebSocket endpoint and the read-only HTTP API.
// Clients may upgrade on "/" as well as "/ws"; a plain GET on "/" is the health check.
func SetupRouter(ctx context.Context, cfg *config.Config, engine *app.Engine) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	// Forwarded headers are honored only from these peers: the client
	// address is the group key.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Strs("trusted_proxies", cfg.TrustedProxies).Msg("bad trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(engine, cfg)
	ws := func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	}

	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			ws(c)
			return
		}
		c.String(http.StatusOK, healthText)
	})
	r.GET("/ws", ws)

	api := r.Group("/api")

	// GET /api/groups — live groups with member count and current speaker
	api.GET("/groups", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"groups": engine.Groups()})
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
