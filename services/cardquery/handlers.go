// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cardquery

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the card query service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the GET /ready body.
type ReadyResponse struct {
	Ready           bool `json:"ready"`
	PatternLearning bool `json:"pattern_learning"`
}

// Handlers contains the HTTP handlers for the card query service.
type Handlers struct {
	svc        *Service
	readyCheck func() bool
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithReadyCheck sets the readiness probe, typically the intent store's
// warmed flag. Without one the service reports ready immediately.
func (h *Handlers) WithReadyCheck(fn func() bool) *Handlers {
	h.readyCheck = fn
	return h
}

// HandleQuery handles POST /v1/cards/query.
//
// Description:
//
//	Runs one natural-language query through the pipeline and returns the
//	structured answer. Recoverable problems (nothing extractable, an
//	ambiguous interpretation) come back as 200 with a non-answered outcome
//	so clients can drive the clarify/confirm loop.
//
// Request Body:
//
//	Request
//
// Response:
//
//	200 OK: Response
//	400 Bad Request: Malformed body or no cards supplied
//	500 Internal Server Error: Execution fault
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.Cards) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "At least one card is required",
			Code:  "NO_CARDS",
		})
		return
	}

	resp, err := h.svc.ProcessQuery(c.Request.Context(), req)
	if err != nil {
		logger.Error("Query execution failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Query execution failed",
			Code:  "EXECUTION_FAILED",
		})
		return
	}

	logger.Info("Query processed",
		"outcome", resp.Outcome,
		"intent", resp.Intent.Label,
		"intent_method", resp.Intent.Method,
		"entity_count", len(resp.Entities))

	c.JSON(http.StatusOK, resp)
}

// HandleAnalyticsReport handles GET /v1/cards/analytics/report.
//
// Response:
//
//	200 OK: analytics.Report
func (h *Handlers) HandleAnalyticsReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Report())
}

// HandlePatterns handles GET /v1/cards/patterns.
//
// Description:
//
//	Returns the learned query patterns, most confident first. Empty when
//	pattern learning is disabled.
//
// Response:
//
//	200 OK: []patterns.QueryPattern
func (h *Handlers) HandlePatterns(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Patterns())
}

// HandleHealth handles GET /v1/cards/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/cards/ready.
//
// Description:
//
//	Returns 503 until the intent example store has been warmed, so load
//	balancers do not route queries to a cold classifier.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	ready := h.readyCheck == nil || h.readyCheck()
	resp := ReadyResponse{
		Ready:           ready,
		PatternLearning: h.svc.patterns != nil,
	}
	if !ready {
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getOrCreateRequestID returns the inbound X-Request-ID or generates one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header("X-Request-ID", id)
	return id
}
