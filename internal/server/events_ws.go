package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already allows any origin via the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	clientBacklog = 64
)

// streamEvents upgrades the connection and pushes bus events matching the
// optional type/source query filters. Delivery is best-effort; a slow client
// drops events rather than stalling the bus.
func streamEvents(c *gin.Context) {
	bus := events.GetGlobalEventBus()
	if bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event bus not running"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed: %v", err)
		return
	}

	filter := events.EventFilter{}
	if t := c.Query("type"); t != "" {
		filter.Types = []events.EventType{events.EventType(t)}
	}
	if s := c.Query("source"); s != "" {
		filter.Sources = []string{s}
	}

	outbox := make(chan events.Event, clientBacklog)
	sub, err := bus.Subscribe(c.Request.Context(), filter, func(event events.Event) error {
		select {
		case outbox <- event:
		default:
			// Slow consumer; the checkpoint is the durability story, not
			// this stream.
		}
		return nil
	})
	if err != nil {
		conn.Close()
		logger.Warn("Event subscription failed: %v", err)
		return
	}

	done := make(chan struct{})

	// Reader goroutine exists to notice the client going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			bus.Unsubscribe(sub.ID)
			conn.Close()
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event := <-outbox:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
}

// recentEvents returns buffered bus events, filterable by type and source,
// with limit/offset pagination.
func recentEvents(c *gin.Context) {
	bus := events.GetGlobalEventBus()
	if bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event bus not running"})
		return
	}

	filter := events.EventFilter{}
	if t := c.Query("type"); t != "" {
		filter.Types = []events.EventType{events.EventType(t)}
	}
	if s := c.Query("source"); s != "" {
		filter.Sources = []string{s}
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	list, total, err := bus.GetEvents(filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"total":  total,
	})
}
