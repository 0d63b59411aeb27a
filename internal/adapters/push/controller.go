// Package push is the persistent-channel surface of the lobby. Inbound
// commands go through the same coordinator entry points as the REST routes;
// outbound events are whatever the fanout hands the connection.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/app"
	"github.com/dkeye/charge/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Coord     *app.Coordinator
	Fanout    *app.Fanout
	Limiter   *CommandRateLimiter
	ReadLimit int64
}

func NewController(coord *app.Coordinator, fanout *app.Fanout, limiter *CommandRateLimiter, readLimit int64) *Controller {
	return &Controller{Coord: coord, Fanout: fanout, Limiter: limiter, ReadLimit: readLimit}
}

// Handle upgrades the request and runs the connection pumps. The read pump
// owns teardown: when it exits the connection is dropped from every fanout
// subscription set.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "push").Str("token", token).Msg("new push connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "push").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, token, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "push").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, token string, c *wsConn) {
	defer func() {
		ctl.Fanout.Unsubscribe(c)
		c.Close()
		cancel()
		log.Info().Str("module", "push").Str("token", token).Msg("push connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleCommand(ctx, token, c, data)
		}
	}
}

func (ctl *Controller) handleCommand(ctx context.Context, token string, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "push").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendJSON(c, map[string]any{"type": "pong"})
		return
	case "subscribe":
		ctl.handleSubscribe(c, data)
		return
	case "subscribe_all":
		ctl.Fanout.SubscribeAll(c)
		return
	}

	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		ctl.sendError(c, "rate_limited")
		return
	}

	switch env.Type {
	case "create_game":
		ctl.handleCreate(ctx, c, data)
	case "kick_player":
		ctl.handleKick(ctx, c, data)
	case "update_game":
		ctl.handleUpdate(ctx, c, data)
	default:
		log.Warn().Str("module", "push").Str("type", env.Type).Msg("unknown command")
	}
}

func (ctl *Controller) handleSubscribe(c *wsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Game string `json:"game"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Game == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Fanout.Subscribe(c, domain.GameID(p.Game))
}

func (ctl *Controller) handleCreate(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type         string         `json:"type"`
		Host         string         `json:"host"`
		Status       string         `json:"status"`
		RoomID       string         `json:"room_id"`
		Rules        domain.RuleSet `json:"rules"`
		IsHistorical bool           `json:"is_historical"`
		IsModded     bool           `json:"is_modded"`
		PlannedTime  *time.Time     `json:"planned_time"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Host == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	status, err := domain.ParseStatus(p.Status)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	snap, err := ctl.Coord.Create(ctx, domain.PlayerID(p.Host), status, p.RoomID, p.Rules, p.IsHistorical, p.IsModded, p.PlannedTime)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "game_created", "game": snap})
}

func (ctl *Controller) handleKick(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Game   string `json:"game"`
		Host   string `json:"host"`
		Player string `json:"player"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Game == "" || p.Player == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	_, err := ctl.Coord.Kick(ctx, domain.GameID(p.Game), domain.PlayerID(p.Host), domain.PlayerID(p.Player))
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
}

func (ctl *Controller) handleUpdate(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type         string         `json:"type"`
		Game         string         `json:"game"`
		Rules        domain.RuleSet `json:"rules"`
		PlannedTime  *time.Time     `json:"planned_time"`
		IsHistorical bool           `json:"is_historical"`
		IsModded     bool           `json:"is_modded"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Game == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	_, err := ctl.Coord.UpdateRules(ctx, domain.GameID(p.Game), p.Rules, p.PlannedTime, p.IsHistorical, p.IsModded)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	ctl.sendJSON(c, map[string]any{"type": "error", "error": msg})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "push").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
