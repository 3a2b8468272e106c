// Package http wires the gin router: session management API, the
// technician login stub and the WebSocket endpoint.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/adapters/signal"
	"github.com/support-eye/relay/internal/config"
	"github.com/support-eye/relay/internal/notify"
	"github.com/support-eye/relay/internal/registry"
)

const sessionRoleKey = "role"

// RequireTechnician gates dashboard routes on the login stub's cookie.
// The relay itself still trusts the role asserted on join; this only
// keeps anonymous browsers off the session-creation API.
func RequireTechnician() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if role, _ := s.Get(sessionRoleKey).(string); role != "TECHNICIAN" {
			c.AbortWithStatusJSON(401, gin.H{"error": "technician login required"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, reg *registry.Registry, notifier notify.Notifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SupportEyeAuth", store))

	h := NewSessionHandler(reg, notifier)

	api := r.Group("/api")
	api.POST("/login", h.Login)
	api.GET("/sessions/:token", h.GetSession)
	api.POST("/sessions", RequireTechnician(), h.CreateSession)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// MountWS attaches the WebSocket endpoint; split out so tests can mount
// the API without a hub.
func MountWS(ctx context.Context, r *gin.Engine, ctl *signal.Controller) {
	r.GET("/api/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})
}
