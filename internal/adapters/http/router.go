package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/adapters/ws"
	"github.com/edlive/classrelay/internal/app"
	"github.com/edlive/classrelay/internal/config"
	"github.com/edlive/classrelay/internal/domain"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/auth/login", Login(cfg.JWTSecret))
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.Rooms.List())
	})
	api.POST("/classes/:classId/live", JWTAuth(cfg.JWTSecret), goLive(orch))

	ctl := ws.NewController(orch, cfg.ReadLimit, cfg.PingPeriod, cfg.SendBuffer)
	r.GET("/ws", func(c *gin.Context) {
		user := identityFromRequest(c, cfg.JWTSecret)
		log.Info().Str("module", "adapters.http").Str("user", user.Username).Msg("ws endpoint hit")
		ctl.HandleClassroom(ctx, c, user)
	})

	return r
}

// goLive lets an authenticated instructor start the session: everyone in
// the room hears it immediately, and the platform notifier invites the
// enrolled students who are not connected yet.
func goLive(orch *app.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		classID := c.Param("classId")
		if classID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "classId is required"})
			return
		}
		instructor := c.GetString(ctxUserName)
		if instructor == "" {
			instructor = c.GetString(ctxUserID)
		}
		if err := orch.GoLive(c.Request.Context(), domain.RoomID(classID), instructor); err != nil {
			log.Error().Str("module", "adapters.http").Str("class", classID).Err(err).Msg("go live failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "notification fan-out failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "live"})
	}
}
