package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/adapters/ws"
	"github.com/okatev/pulse/internal/app"
	"github.com/okatev/pulse/internal/config"
	"github.com/okatev/pulse/internal/domain"
)

// IdentityMiddleware resolves the verified user identity for the request.
// The auth collaborator puts it in the userId query parameter at handshake
// time; a session cookie remembers it across page reloads.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("userId")
		sess := sessions.Default(c)
		if raw == "" {
			if v, ok := sess.Get("user_id").(string); ok {
				raw = v
			}
		}
		user, err := domain.ParseUserID(raw)
		if err != nil {
			c.Next()
			return
		}
		sess.Set("user_id", string(user))
		_ = sess.Save()
		c.Set("user_id", string(user))
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc *app.Service) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PulseSession", store))
	r.Use(IdentityMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ctl := ws.NewController(svc, cfg)
	r.GET("/ws", func(c *gin.Context) {
		ctl.Handle(ctx, c)
	})

	// Collaborator surface for the REST layer (message store, friend
	// requests): forward an event to a user, read the online set.
	internal := r.Group("/internal")
	internal.POST("/notify", handleNotify(svc))
	internal.GET("/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": svc.CurrentOnlineUsers()})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

type notifyRequest struct {
	To      domain.UserID    `json:"to" binding:"required"`
	Kind    domain.EventKind `json:"kind" binding:"required"`
	Payload map[string]any   `json:"payload"`
}

func handleNotify(svc *app.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing to or kind"})
			return
		}
		delivered := svc.Notify(c.Request.Context(), req.To, req.Kind, req.Payload)
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	}
}
