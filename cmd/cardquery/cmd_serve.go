// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/telemetry"
)

var (
	servePort  int
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the card query API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug mode")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := cmd.Context()

	shutdownTelemetry, err := telemetry.Init(ctx,
		telemetry.DefaultConfig("vitta-cardquery", cardquery.ServiceVersion))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	env, err := buildEnvironment(ctx)
	if err != nil {
		return err
	}

	// Corpus warm-up runs in the background so startup is not gated on the
	// embedding service. /ready reports 503 until it completes.
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		start := time.Now()
		if werr := env.warm(warmCtx); werr != nil {
			slog.Warn("Intent corpus warm-up failed, classifier will degrade to fallback tiers",
				slog.String("error", werr.Error()))
			return
		}
		slog.Info("Intent corpus warmed",
			slog.Int("example_count", len(env.examples)),
			slog.Duration("duration", time.Since(start)))
	}()

	handlers := cardquery.NewHandlers(env.svc).WithReadyCheck(env.memStore.IsWarmed)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("vitta-cardquery"))
	if serveDebug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	cardquery.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(servePort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down card query server")
		env.close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTelemetry(shutdownCtx); terr != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", terr.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", servePort)
	slog.Info("Starting card query server", slog.String("address", addr))
	return router.Run(addr)
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     VITTA CARD QUERY SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Natural-language queries over credit card records.               ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/cards/health              │  ║
║  │                                                             │  ║
║  │ # Run a query                                               │  ║
║  │ curl -X POST http://localhost:%d/v1/cards/query \     │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"utterance": "total balance", "cards": [...]}'       │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Query: POST /v1/cards/query                                  ║
║  ├── Patterns: GET /v1/cards/patterns                             ║
║  ├── Analytics: GET /v1/cards/analytics/report                    ║
║  └── Health: /v1/cards/health, /v1/cards/ready, /metrics          ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
