package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/middleware"
	"github.com/Nzyazin/walletd/internal/core/response"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// RealtimeHandler relays the caller's committed transaction events over a
// websocket.
type RealtimeHandler struct {
	sub      events.Subscriber
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(sub events.Subscriber, log logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		sub: sub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.sub.Subscribe(ctx, s.UserID)
	if err != nil {
		h.log.Error("Failed to subscribe to events",
			logger.StringField("user_id", s.UserID.String()),
			logger.ErrorField("error", err))
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "Realtime updates unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", logger.ErrorField("error", err))
		return
	}
	defer conn.Close()

	h.log.Info("Realtime client connected", logger.StringField("user_id", s.UserID.String()))

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, stream)

	h.log.Info("Realtime client disconnected", logger.StringField("user_id", s.UserID.String()))
}

// readPump discards client messages and cancels the session when the peer
// goes away or stops answering pings.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Websocket read failed", logger.ErrorField("error", err))
			}
			return
		}
	}
}

func (h *RealtimeHandler) writePump(ctx context.Context, conn *websocket.Conn, stream <-chan events.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case e, ok := <-stream:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.Warn("Failed to write event", logger.ErrorField("error", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
