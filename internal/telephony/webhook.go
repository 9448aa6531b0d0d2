package telephony

import (
	"net/http"

	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusEvent is the JSON body of a platform status webhook.
type StatusEvent struct {
	Event  string       `json:"event"`
	Params StatusParams `json:"params"`
}

// StatusParams carries the call the event refers to. Additional provider
// fields are ignored.
type StatusParams struct {
	CallID string `json:"call_id"`
	State  string `json:"state,omitempty"`
}

var terminalWebhookEvents = map[string]struct{}{
	"call.ended":     {},
	"call.completed": {},
	"call.failed":    {},
	"call.busy":      {},
}

// IsTerminalWebhookEvent reports whether the named webhook event retires a call.
func IsTerminalWebhookEvent(name string) bool {
	_, ok := terminalWebhookEvents[name]
	return ok
}

// StateForWebhookEvent maps a non-terminal webhook event name to a call state.
// Returns "" for names that carry no state information.
func StateForWebhookEvent(name string) State {
	switch name {
	case "call.created":
		return StateCreated
	case "call.ringing":
		return StateRinging
	case "call.answered":
		return StateAnswered
	case "call.active":
		return StateActive
	default:
		return ""
	}
}

// WebhookEngine is the slice of the reconciliation engine the webhook
// handler needs.
type WebhookEngine interface {
	HandleWebhookEvent(ev StatusEvent)
}

// StatusWebhookHandler accepts platform status webhooks and delegates to the
// reconciliation engine.
//
// Response contract: malformed bodies (missing event or params) get 400;
// every well-formed body gets 200 whether or not the event is recognized,
// so senders never retry on unrecognized events.
type StatusWebhookHandler struct {
	Engine WebhookEngine
}

func (h StatusWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return
	}

	var ev StatusEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		log.Warn("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook data"})
		return
	}
	// An event without a call id is unactionable; reject it rather than
	// acknowledge and drop, even though some senders would accept a 200.
	if ev.Event == "" || ev.Params.CallID == "" {
		log.Warn("webhook missing fields", "event", ev.Event, "call_id", ev.Params.CallID)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook data"})
		return
	}

	log.Debug("webhook event", "event", ev.Event, "call_id", ev.Params.CallID)
	h.Engine.HandleWebhookEvent(ev)

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
