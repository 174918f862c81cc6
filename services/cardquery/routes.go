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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all card query routes with the router.
//
// Description:
//
//	Registers all /v1/cards/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/cards/query - Run a natural-language query
//	GET  /v1/cards/patterns - List learned query patterns
//	GET  /v1/cards/analytics/report - Aggregate query analytics
//	GET  /v1/cards/health - Health check
//	GET  /v1/cards/ready - Readiness check
//
// Example:
//
//	service, _ := cardquery.NewService(cardquery.DefaultOptions(), deps, logger)
//	handlers := cardquery.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	cardquery.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cardsGroup := rg.Group("/cards")
	{
		// Query pipeline
		cardsGroup.POST("/query", handlers.HandleQuery)

		// Learned patterns and analytics
		cardsGroup.GET("/patterns", handlers.HandlePatterns)
		cardsGroup.GET("/analytics/report", handlers.HandleAnalyticsReport)

		// Health checks
		cardsGroup.GET("/health", handlers.HandleHealth)
		cardsGroup.GET("/ready", handlers.HandleReady)
	}
}
