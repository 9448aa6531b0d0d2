package observer

import (
	"context"
	"net/http"

	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay serves its own browser UI from arbitrary tunnels during
	// development; token verification is the gate, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChannelHandler upgrades observer websocket connections.
type ChannelHandler struct {
	Hub    *Hub
	Engine Engine

	// Verify validates the session token from the upgrade request and
	// returns its session id. Nil disables verification (tests, local).
	Verify func(token string) (string, error)
}

func (h ChannelHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Hub == nil || h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "observer channel not configured"})
		return
	}

	sessionID := uuid.NewString()
	if h.Verify != nil {
		sid, err := h.Verify(c.Query("token"))
		if err != nil {
			log.Warn("observer token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		sessionID = sid
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	s := newSession(sessionID, conn, h.Engine, h.Hub, log)
	h.Hub.add(s)
	log.Info("observer connected", "session_id", sessionID)

	go s.writePump()
	// Block until the observer goes away; the request context dies with the
	// handler, so commands run against the background context with their own
	// timeouts.
	s.readPump(context.Background())
}
