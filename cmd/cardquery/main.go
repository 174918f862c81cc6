// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cardquery runs the Vitta card query service.
//
// The service answers natural-language questions about credit cards with:
//   - Synonym-driven entity extraction (attributes, operators, aggregations)
//   - Confidence-tiered intent classification (vectors, then LLM fallback)
//   - Learned query patterns that short-circuit repeat questions
//   - A deterministic structured-query engine with proactive insights
//
// Usage:
//
//	go run ./cmd/cardquery serve
//	go run ./cmd/cardquery serve --port 9090
//	go run ./cmd/cardquery ask --cards cards.json "what is my total balance"
//
// With a local Ollama for embeddings and the LLM fallback tier:
//
//	go run ./cmd/cardquery serve \
//	  --embedding-url http://localhost:11434/api/embed \
//	  --llm-model llama3.2
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/cards/health
//
//	# Run a query
//	curl -X POST http://localhost:8080/v1/cards/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"utterance": "cards with balance over 5000", "cards": [...]}'
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/analytics"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/patterns"
	badgerstore "github.com/mkatragadda/Vitta-sub002/services/cardquery/storage/badger"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/synonyms"
	"github.com/mkatragadda/Vitta-sub002/services/llm"
)

var (
	dataDir          string
	embeddingURL     string
	embeddingModel   string
	llmURL           string
	llmModel         string
	weaviateHost     string
	weaviateScheme   string
	influxURL        string
	influxToken      string
	influxOrg        string
	influxBucket     string
	synonymsOverride string
	noLearning       bool
	noAnalytics      bool
)

var rootCmd = &cobra.Command{
	Use:   "cardquery",
	Short: "Natural-language queries over credit card records",
	Long: `cardquery answers questions like "which card has the highest APR" by
extracting entities, classifying intent, and executing a structured query
against the supplied card records. Successful decompositions are learned as
reusable patterns.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data-dir", "", "BadgerDB directory for pattern and embedding persistence (default ~/.vitta/cardquery)")
	pf.StringVar(&embeddingURL, "embedding-url", "", "Embedding endpoint URL (default $EMBEDDING_SERVICE_URL or the localhost Ollama /api/embed)")
	pf.StringVar(&embeddingModel, "embedding-model", "", "Embedding model name (default $EMBEDDING_MODEL or nomic-embed-text)")
	pf.StringVar(&llmURL, "llm-url", "http://localhost:11434", "Ollama base URL for the LLM fallback tier")
	pf.StringVar(&llmModel, "llm-model", "", "LLM fallback model; empty disables the model tier")
	pf.StringVar(&weaviateHost, "weaviate-host", "", "Weaviate host for vector search; empty uses the in-memory store")
	pf.StringVar(&weaviateScheme, "weaviate-scheme", "http", "Weaviate scheme")
	pf.StringVar(&influxURL, "influx-url", "", "InfluxDB URL for analytics export; empty disables export")
	pf.StringVar(&influxToken, "influx-token", "", "InfluxDB API token")
	pf.StringVar(&influxOrg, "influx-org", "vitta", "InfluxDB organization")
	pf.StringVar(&influxBucket, "influx-bucket", "cardquery", "InfluxDB bucket")
	pf.StringVar(&synonymsOverride, "synonyms-override", "", "YAML file with extra synonym phrases, hot-reloaded on change")
	pf.BoolVar(&noLearning, "no-learning", false, "Disable pattern learning")
	pf.BoolVar(&noAnalytics, "no-analytics", false, "Disable analytics recording")
}

func main() {
	rootCmd.AddCommand(serveCmd, askCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// environment bundles everything built from flags that outlives one request.
type environment struct {
	svc      *cardquery.Service
	memStore *intent.MemoryStore
	wvStore  *intent.WeaviateStore // nil unless --weaviate-host is set
	mapper   *synonyms.Mapper
	examples []intent.Example
	db       *badgerstore.DB       // nil when persistence is unavailable
	sink     *analytics.InfluxSink // nil unless influx flags are set
}

// buildEnvironment wires the pipeline from the persistent flags. Missing
// external services degrade rather than fail: no BadgerDB means no
// persistence, no LLM model means no fallback tier.
func buildEnvironment(ctx context.Context) (*environment, error) {
	logger := slog.Default()

	mapper, err := synonyms.NewMapper(logger)
	if err != nil {
		return nil, fmt.Errorf("load synonym tables: %w", err)
	}
	if synonymsOverride != "" {
		if err := mapper.WatchOverrides(ctx, synonymsOverride); err != nil {
			logger.Warn("Synonym override watch failed, using built-in tables only",
				slog.String("path", synonymsOverride),
				slog.String("error", err.Error()))
		}
	}

	env := &environment{mapper: mapper}

	dir := dataDir
	if dir == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			dir = filepath.Join(home, ".vitta", "cardquery")
		}
	}
	if dir != "" {
		db, derr := badgerstore.Open(dir, logger)
		if derr != nil {
			logger.Warn("BadgerDB unavailable, patterns and embeddings will not persist",
				slog.String("path", dir),
				slog.String("error", derr.Error()))
		} else {
			env.db = db
		}
	}

	embedder := intent.NewOllamaEmbedder(embeddingURL, embeddingModel)
	var cache intent.EmbeddingCacheStore
	if env.db != nil {
		cache = intent.NewBadgerEmbeddingCache(env.db, 0, logger)
	}
	env.memStore = intent.NewMemoryStore(embedder, cache, logger)
	env.examples, err = intent.LoadExamples()
	if err != nil {
		env.close()
		return nil, fmt.Errorf("load intent examples: %w", err)
	}

	var vecStore intent.VectorStore = env.memStore
	if weaviateHost != "" {
		client, werr := weaviate.NewClient(weaviate.Config{
			Host:   weaviateHost,
			Scheme: weaviateScheme,
		})
		if werr != nil {
			logger.Warn("Weaviate unavailable, using in-memory vector store",
				slog.String("host", weaviateHost),
				slog.String("error", werr.Error()))
		} else {
			ws, serr := intent.NewWeaviateStore(client, logger)
			if serr != nil {
				logger.Warn("Weaviate store setup failed, using in-memory vector store",
					slog.String("error", serr.Error()))
			} else {
				env.wvStore = ws
				vecStore = ws
			}
		}
	}

	var fallback llm.Completer
	if llmModel != "" {
		completer, cerr := llm.NewOllamaCompleter(llmURL, llmModel)
		if cerr != nil {
			logger.Warn("LLM fallback unavailable, classifier will use vector tiers only",
				slog.String("model", llmModel),
				slog.String("error", cerr.Error()))
		} else {
			fallback = completer
			logger.Info("LLM fallback tier enabled", slog.String("model", llmModel))
		}
	}

	var patternStore *patterns.Store
	if !noLearning {
		var opts []patterns.Option
		if env.db != nil {
			opts = append(opts, patterns.WithPersister(patterns.NewBadgerPersister(env.db, logger)))
		}
		patternStore = patterns.NewStore(logger, opts...)
		if err := patternStore.Load(ctx); err != nil {
			logger.Warn("Pattern load failed, starting with an empty store",
				slog.String("error", err.Error()))
		}
	}

	var sink analytics.Sink
	if influxURL != "" && influxToken != "" {
		env.sink = analytics.NewInfluxSink(influxURL, influxToken, influxOrg, influxBucket)
		sink = env.sink
		logger.Info("Analytics export to InfluxDB enabled", slog.String("url", influxURL))
	}
	recorder := analytics.NewRecorder(!noAnalytics, sink, logger)

	opts := cardquery.DefaultOptions()
	opts.EnablePatternLearning = !noLearning
	opts.EnableAnalytics = !noAnalytics

	env.svc, err = cardquery.NewService(opts, cardquery.Deps{
		Mapper:      mapper,
		Embedder:    embedder,
		VectorStore: vecStore,
		Fallback:    fallback,
		Patterns:    patternStore,
		Recorder:    recorder,
	}, logger)
	if err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

// warm embeds the intent example corpus and, when Weaviate is configured,
// seeds it with the warmed vectors. A failure leaves the classifier on its
// fallback tiers; the service still answers queries.
func (env *environment) warm(ctx context.Context) error {
	if err := env.memStore.Warm(ctx, env.examples); err != nil {
		return err
	}
	if env.wvStore == nil {
		return nil
	}
	if err := env.wvStore.EnsureSchema(ctx); err != nil {
		return err
	}
	return env.wvStore.Seed(ctx, env.examples, env.memStore.Vectors())
}

func (env *environment) close() {
	if env.sink != nil {
		env.sink.Close()
	}
	if env.db != nil {
		if err := env.db.Close(); err != nil {
			slog.Warn("Failed to close BadgerDB", slog.String("error", err.Error()))
		}
	}
}
