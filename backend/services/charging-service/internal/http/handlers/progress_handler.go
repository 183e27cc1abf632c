package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/realtime"
	"chargeway/backend/services/charging-service/internal/service"
)

// ProgressHandler upgrades /ws/charging-progress and subscribes the socket to the
// user's session at the requested station.
type ProgressHandler struct {
	hub      *realtime.Hub
	charging *service.ChargingService
	connOpts realtime.ConnOptions
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewProgressHandler builds the websocket handler. origins limits browser origins;
// empty allows any.
func NewProgressHandler(hub *realtime.Hub, charging *service.ChargingService, origins []string, opts realtime.ConnOptions, logger *zap.Logger) *ProgressHandler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &ProgressHandler{
		hub:      hub,
		charging: charging,
		connOpts: opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// ServeHTTP handles GET /ws/charging-progress?stationId=.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	stationID, ok := parseID(r.URL.Query().Get("stationId"), true)
	if !ok {
		writeError(w, http.StatusBadRequest, "stationId is required")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	key := realtime.SessionKey{UserID: userID, StationID: stationID}
	ctx, cancel := context.WithCancel(context.Background())
	var conn *realtime.Conn
	conn = realtime.NewConn(ws, h.connOpts, h.logger, func() {
		h.hub.Unsubscribe(key, conn)
		cancel()
	})
	if !h.hub.Subscribe(key, conn) {
		conn.Close()
		_ = ws.Close()
		return
	}

	// Subscribed before the lookup, so frames broadcast meanwhile are queued on conn.
	initial, err := h.charging.ActiveTicket(r.Context(), userID, stationID)
	if err != nil {
		h.logger.Warn("load initial ticket", zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, service.PublicMessage(err))
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		_ = ws.Close()
		return
	}
	if err := h.hub.Send(conn, realtime.Frame{Type: realtime.FrameInitial, Ticket: initial}); err != nil {
		h.logger.Warn("send initial frame", zap.Error(err))
	}
	h.logger.Debug("progress subscriber connected", zap.String("session", key.String()))
	conn.Run(ctx)
}
