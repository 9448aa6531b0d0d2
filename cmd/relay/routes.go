package main

import (
	"fmt"
	"net/http"
	"time"

	"call-relay/internal/auth"
	"call-relay/internal/config"
	"call-relay/internal/observer"
	"call-relay/internal/reconcile"
	"call-relay/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg    config.Config
	auth   *auth.Manager
	engine *reconcile.Engine
	hub    *observer.Hub
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"calls":     deps.engine.Registry().Len(),
			"observers": deps.hub.Sessions(),
		})
	})

	// Browsers fetch a session token here before dialing the websocket.
	r.GET("/session", func(c *gin.Context) {
		token, sessionID, err := deps.auth.IssueSessionToken(time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "sessionId": sessionID})
	})

	// Platform status webhook (public; the platform owns retry policy).
	wh := telephony.StatusWebhookHandler{Engine: deps.engine}
	r.POST("/webhook/status", wh.HandleStatus)

	// Observer channel.
	ws := observer.ChannelHandler{
		Hub:    deps.hub,
		Engine: deps.engine,
		Verify: deps.auth.VerifySessionToken,
	}
	r.GET("/ws", ws.Handle)

	// Reports which env vars are set without leaking their values.
	r.GET("/debug/env", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"project":      setIndicator(deps.cfg.SignalWire.ProjectID),
			"token":        setIndicator(deps.cfg.SignalWire.Token),
			"space_url":    orNotSet(deps.cfg.SignalWire.SpaceURL),
			"phone_number": orNotSet(deps.cfg.SignalWire.PhoneNumber),
			"public_url":   orNotSet(deps.cfg.SignalWire.PublicURL),
		})
	})
}

func setIndicator(v string) string {
	if v == "" {
		return "Not set"
	}
	return fmt.Sprintf("Set (length: %d)", len(v))
}

func orNotSet(v string) string {
	if v == "" {
		return "Not set"
	}
	return v
}
