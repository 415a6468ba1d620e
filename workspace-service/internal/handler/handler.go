package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/registry"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/service"
)

// Rooms resolves room actors by id.
type Rooms interface {
	Get(ctx context.Context, roomID string) (service.RoomService, error)
}

// Handler serves the websocket endpoint and room exports.
type Handler struct {
	rooms    Rooms
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewHandler(rooms Rooms, wsCfg config.WebSocketConfig) *Handler {
	// nil keeps gorilla's same-origin check.
	var checkOrigin func(r *http.Request) bool
	if !wsCfg.CheckOrigin {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		rooms: rooms,
		wsCfg: wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	rooms := r.Group("/rooms/:room_id")
	{
		rooms.GET("/ws", h.ServeWebSocket)
		rooms.GET("/export", h.Export)
	}
}

func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// ServeWebSocket upgrades the request and attaches the connection to its
// room. Plain HTTP requests get 426 with no body.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.AbortWithStatus(http.StatusUpgradeRequired)
		return
	}

	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(conn, h.wsCfg)
	room, err := h.connect(ctx, roomID, client)
	if err != nil {
		l.Error().Err(err).Msg("failed to attach connection")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "room unavailable"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(room.HandleFrame, room.Disconnect)
}

// connect retries once when the room was swept between lookup and attach.
func (h *Handler) connect(ctx context.Context, roomID string, client *hub.Client) (service.RoomService, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		room, err := h.rooms.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if lastErr = room.Connect(client); lastErr == nil {
			return room, nil
		}
		if !errors.Is(lastErr, service.ErrRoomClosed) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Export returns the room snapshot as a JSON download.
func (h *Handler) Export(c *gin.Context) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room, err := h.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			response.ServiceUnavailable(c, "server is shutting down")
			return
		}
		l.Error().Err(err).Msg("failed to resolve room")
		response.InternalError(c, "failed to load room")
		return
	}

	snap, err := room.Snapshot(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to export room")
		response.InternalError(c, "failed to export room")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "room-"+roomID+".json"))
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) roomID(c *gin.Context) (string, bool) {
	roomID := c.Param("room_id")
	if err := domain.Validator().Var(roomID, "notblank,max=128"); err != nil {
		response.BadRequest(c, "invalid room id")
		return "", false
	}
	return roomID, true
}
