package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/app"
	"github.com/okatev/pulse/internal/config"
	"github.com/okatev/pulse/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Svc *app.Service
	Cfg *config.Config
}

func NewController(svc *app.Service, cfg *config.Config) *Controller {
	return &Controller{Svc: svc, Cfg: cfg}
}

// Handle upgrades the request and runs the connection lifecycle: register,
// pump, and on any exit path a guarded unregister plus call cleanup.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	user := domain.UserID(c.GetString("user_id"))
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing identity"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	conn := NewConn(user, sock)
	log.Info().Str("module", "ws").Str("user", string(user)).Str("conn", string(conn.ID())).Msg("connected")

	// Registry mapping is last-write-wins; the displaced socket is ours
	// to close.
	if prev := ctl.Svc.HandleConnect(ctx, conn); prev != nil {
		log.Info().Str("module", "ws").Str("user", string(user)).Str("conn", string(prev.ID())).Msg("closing displaced connection")
		prev.Close()
	}

	connCtx, cancel := context.WithCancel(ctx)
	go conn.writePump(connCtx, ctl.Cfg.PingPeriod)
	go func() {
		defer func() {
			cancel()
			ctl.Svc.HandleDisconnect(ctx, user, conn.ID())
			log.Info().Str("module", "ws").Str("user", string(user)).Str("conn", string(conn.ID())).Msg("disconnected")
		}()
		conn.readPump(connCtx, ctl.Cfg.ReadLimit, ctl.Cfg.PongWait, func(data []byte) {
			ctl.dispatch(connCtx, conn, data)
		})
	}()
}
