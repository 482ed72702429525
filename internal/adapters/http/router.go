// Package http exposes the token endpoint, the room directory and the
// presence websocket over gin.
package http

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yahabaat/voiceroom/internal/config"
	"github.com/yahabaat/voiceroom/internal/presence"
	"github.com/yahabaat/voiceroom/internal/token"
)

func SetupRouter(ctx context.Context, cfg *config.Config, issuer *token.Issuer, store *presence.Store, dir *presence.Directory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	// The token endpoint is fetched cross-origin by the room page.
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceroomSessions", cookieStore))

	h := &Handlers{Issuer: issuer, Directory: dir}
	ws := NewPresenceWSController(store)

	r.GET("/token", h.HandleToken)

	api := r.Group("/api")
	api.GET("/rooms", h.HandleListRooms)
	api.POST("/rooms", h.HandleCreateRoom)
	api.GET("/session", h.HandleGetSession)
	api.POST("/session", h.HandleSetSession)
	api.GET("/ws/presence", func(c *gin.Context) {
		ws.HandlePresence(ctx, c)
	})

	return r
}
