// Package handlers - status.go
//
// This file implements GET /health and GET /auth/status.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/delight-co/finest-grained-auth-proxy/internal/health"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// StatusHandler serves the liveness and credential-health endpoints.
type StatusHandler struct {
	registry *plugins.Registry
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(registry *plugins.Registry) *StatusHandler {
	return &StatusHandler{registry: registry}
}

// HandleHealth handles GET /health. It touches no credential and performs
// no upstream call; a 200 means only that the proxy process is serving.
func (h *StatusHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
		"plugins": len(h.registry.All()),
	})
}

// HandleAuthStatus handles GET /auth/status.
//
// It aggregates per-plugin credential probes. The endpoint itself is always
// 200; individual probe failures show up as {valid: false, error_kind} in
// the list.
func (h *StatusHandler) HandleAuthStatus(c *gin.Context) {
	results := health.ProbeAll(c.Request.Context(), h.registry)
	c.JSON(http.StatusOK, gin.H{"credentials": results})
}
