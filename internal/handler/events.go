package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/service"
)

const (
	streamPingPeriod   = 15 * time.Second
	streamWriteTimeout = 5 * time.Second
)

type EventHandler struct {
	events   *service.EventService
	upgrader websocket.Upgrader
}

func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func parseEventFilter(c *gin.Context) (model.EventFilter, error) {
	filter := model.EventFilter{
		Type:  model.EventType(c.Query("type")),
		Limit: 100,
	}
	if raw := c.Query("subject"); raw != "" {
		addr, err := parseAddress(raw, "subject")
		if err != nil {
			return filter, err
		}
		filter.Subject = addr.Hex()
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, apperrors.NewInvalidRequest(err.Error())
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, apperrors.NewInvalidRequest(err.Error())
		}
		filter.To = &t
	}
	return filter, nil
}

func (h *EventHandler) List(c *gin.Context) {
	filter, err := parseEventFilter(c)
	if err != nil {
		c.Error(err)
		return
	}
	records, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

// Stream pushes matching events over a websocket as they are recorded.
func (h *EventHandler) Stream(c *gin.Context) {
	filter, err := parseEventFilter(c)
	if err != nil {
		c.Error(err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("Event stream upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe(64)
	defer cancel()

	// Drain client frames so close and pong control messages are handled.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(streamPingPeriod + 10*time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPingPeriod + 10*time.Second))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if !filter.Match(event) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
