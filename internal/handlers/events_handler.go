package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/broadcast"
	"github.com/anonto42/nano-feed/backend/internal/middleware"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscriber registers live listeners for feed changes.
type Subscriber interface {
	Subscribe() *broadcast.Subscription
}

// EventsHandler streams feed change events over a WebSocket.
type EventsHandler struct {
	hub      Subscriber
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewEventsHandler(hub Subscriber, log *slog.Logger) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// RegisterEventRoutes mounts the stream behind the given middleware, which must
// authenticate the caller.
func (h *EventsHandler) RegisterEventRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/events", h.Stream, m...)
}

// Stream upgrades the connection and forwards every event published while it is
// open. The stream ends when the client leaves, or when the hub drops or closes
// the subscription.
func (h *EventsHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the failure response.
		h.log.WarnContext(ctx, "Failed to upgrade events connection",
			"error", err)
		return nil
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	userID, _ := c.Get(middleware.UserIDKey).(uint)
	h.log.InfoContext(ctx, "Events subscriber connected",
		"subscriptionID", sub.ID(),
		"userID", userID)

	gone := make(chan struct{})
	go h.readLoop(conn, gone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				h.log.InfoContext(ctx, "Events subscription closed by hub",
					"subscriptionID", sub.ID())
				return nil
			}
			if err = conn.WriteJSON(ev); err != nil {
				h.log.WarnContext(ctx, "Failed to write event",
					"error", err,
					"subscriptionID", sub.ID())
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-gone:
			h.log.InfoContext(ctx, "Events subscriber disconnected",
				"subscriptionID", sub.ID())
			return nil
		}
	}
}

// readLoop discards client messages and closes gone once the peer goes away.
func (h *EventsHandler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
