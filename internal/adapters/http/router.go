package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/adapters/signal"
	"github.com/frostbyte/callguard/internal/app"
	"github.com/frostbyte/callguard/internal/config"
	"github.com/frostbyte/callguard/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	ctl *signal.SignalWSController,
	reg *app.Registry,
	calls *app.CallManager,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallguardSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("cid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	// Call-target discovery by display-name prefix, bounded.
	api.GET("/users/search", func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			c.JSON(http.StatusOK, []domain.Identity{})
			return
		}
		c.JSON(http.StatusOK, reg.SearchByPrefix(query, cfg.SearchLimit))
	})

	api.GET("/users", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.ListIdentities())
	})

	api.GET("/stats", func(c *gin.Context) {
		stats := reg.Stats()
		c.JSON(http.StatusOK, gin.H{
			"totalUsers":  stats.TotalUsers,
			"onlineUsers": stats.OnlineUsers,
			"activeCalls": calls.Active(),
		})
	})

	return r
}
