// Package httpapi is the request/response surface of the lobby. Every route
// maps 1:1 to a coordinator operation; the push surface lives in the push
// package and shares the same entry points.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/app"
	"github.com/dkeye/charge/internal/config"
	"github.com/dkeye/charge/internal/domain"
	"github.com/dkeye/charge/internal/adapters/push"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable token cookie. The
// push channel uses it as the rate-limit key.
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

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, pushCtl *push.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChargeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.httpapi").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/games", func(c *gin.Context) {
		snaps, err := coord.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": snaps})
	})

	api.POST("/games", func(c *gin.Context) {
		var req createRequest
		if err := c.BindJSON(&req); err != nil || req.Host == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid host"})
			return
		}
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		snap, err := coord.Create(c.Request.Context(), domain.PlayerID(req.Host), status, req.RoomID, req.Rules, req.IsHistorical, req.IsModded, req.PlannedTime)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, snap)
	})

	api.GET("/games/:id", func(c *gin.Context) {
		snap, err := coord.Get(c.Request.Context(), domain.GameID(c.Param("id")))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.DELETE("/games/:id", func(c *gin.Context) {
		if err := coord.Delete(c.Request.Context(), domain.GameID(c.Param("id"))); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/games/:id/join", func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"player_id"`
			Username string `json:"username"`
		}
		if err := c.BindJSON(&req); err != nil || req.PlayerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing player_id"})
			return
		}
		snap, err := coord.Join(c.Request.Context(), domain.GameID(c.Param("id")), domain.PlayerID(req.PlayerID), req.Username)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.POST("/games/:id/leave", func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"player_id"`
		}
		if err := c.BindJSON(&req); err != nil || req.PlayerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing player_id"})
			return
		}
		snap, err := coord.Leave(c.Request.Context(), domain.GameID(c.Param("id")), domain.PlayerID(req.PlayerID))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.POST("/games/:id/kick", func(c *gin.Context) {
		var req struct {
			HostID   string `json:"host_id"`
			PlayerID string `json:"player_id"`
		}
		if err := c.BindJSON(&req); err != nil || req.HostID == "" || req.PlayerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing host_id or player_id"})
			return
		}
		snap, err := coord.Kick(c.Request.Context(), domain.GameID(c.Param("id")), domain.PlayerID(req.HostID), domain.PlayerID(req.PlayerID))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.POST("/games/:id/rules", func(c *gin.Context) {
		var req rulesRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		snap, err := coord.UpdateRules(c.Request.Context(), domain.GameID(c.Param("id")), req.Rules, req.PlannedTime, req.IsHistorical, req.IsModded)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.GET("/ws", func(c *gin.Context) {
		pushCtl.Handle(ctx, c)
	})

	return r
}

type createRequest struct {
	Host         string         `json:"host"`
	Status       string         `json:"status"`
	RoomID       string         `json:"room_id"`
	Rules        domain.RuleSet `json:"rules"`
	IsHistorical bool           `json:"is_historical"`
	IsModded     bool           `json:"is_modded"`
	PlannedTime  *time.Time     `json:"planned_time"`
}

type rulesRequest struct {
	Rules        domain.RuleSet `json:"rules"`
	PlannedTime  *time.Time     `json:"planned_time"`
	IsHistorical bool           `json:"is_historical"`
	IsModded     bool           `json:"is_modded"`
}

// fail maps the domain error taxonomy onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrNotMember),
		errors.Is(err, domain.ErrSelfKick),
		errors.Is(err, domain.ErrBadStatus),
		errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
