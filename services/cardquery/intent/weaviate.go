// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// IntentExampleClassName is the Weaviate class holding the example corpus.
const IntentExampleClassName = "IntentExample"

// WeaviateStore implements VectorStore against a Weaviate instance.
//
// # Description
//
// An alternative to MemoryStore for deployments that already run Weaviate
// and want the example corpus shared across service replicas. Vectors are
// supplied by our embedder (vectorizer "none"), so search results stay
// identical to the in-memory scan.
//
// Search failures degrade: a network error is logged and reported as
// (nil, nil) so the classifier falls through to its language-model tier
// instead of failing the query.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateStore wraps an existing Weaviate client.
func NewWeaviateStore(client *weaviate.Client, logger *slog.Logger) (*WeaviateStore, error) {
	if client == nil {
		return nil, errors.New("weaviate store: client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateStore{client: client, logger: logger}, nil
}

// EnsureSchema creates the IntentExample class if it does not exist.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(IntentExampleClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate schema check: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       IntentExampleClassName,
		Description: "Labeled utterances for intent classification",
		Vectorizer:  "none", // vectors supplied by the service's own embedder
		Properties: []*models.Property{
			{
				Name:         "label",
				DataType:     []string{"text"},
				Description:  "Intent label",
				Tokenization: "field",
			},
			{
				Name:         "text",
				DataType:     []string{"text"},
				Description:  "Example utterance",
				Tokenization: "word",
			},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("weaviate schema create: %w", err)
	}
	s.logger.Info("weaviate store: created class", slog.String("class", IntentExampleClassName))
	return nil
}

// Seed batch-inserts the example corpus with pre-computed unit vectors.
// Existing objects are left in place; call after wiping the class to reseed.
func (s *WeaviateStore) Seed(ctx context.Context, examples []Example, vectors map[string][]float32) error {
	batcher := s.client.Batch().ObjectsBatcher()
	count := 0
	for _, ex := range examples {
		vec, ok := vectors[ex.Text]
		if !ok {
			continue
		}
		batcher = batcher.WithObjects(&models.Object{
			Class: IntentExampleClassName,
			Properties: map[string]interface{}{
				"label": string(ex.Label),
				"text":  ex.Text,
			},
			Vector: vec,
		})
		count++
	}
	if count == 0 {
		return nil
	}
	if _, err := batcher.Do(ctx); err != nil {
		return fmt.Errorf("weaviate seed: %w", err)
	}
	s.logger.Info("weaviate store: seeded examples", slog.Int("count", count))
	return nil
}

// Search runs a nearVector query and maps certainty onto [0,1] scores.
func (s *WeaviateStore) Search(ctx context.Context, queryVec []float32, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		return nil, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVec)

	// certainty is always [0,1] regardless of the distance metric.
	fields := []graphql.Field{
		{Name: "label"},
		{Name: "text"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(IntentExampleClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		s.logger.Warn("weaviate store: search failed, degrading",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if len(result.Errors) > 0 {
		s.logger.Warn("weaviate store: graphql errors, degrading",
			slog.String("error", result.Errors[0].Message),
		)
		return nil, nil
	}

	return parseNeighbors(result.Data)
}

// parseNeighbors walks the GraphQL Get response shape.
func parseNeighbors(data map[string]models.JSONObject) ([]Neighbor, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objs, ok := get[IntentExampleClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Neighbor, 0, len(objs))
	for _, raw := range objs {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		n := Neighbor{}
		if label, ok := obj["label"].(string); ok {
			n.Label = Label(label)
		}
		if text, ok := obj["text"].(string); ok {
			n.Text = text
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := add["certainty"].(float64); ok {
				n.Score = certainty
			}
		}
		if n.Label.IsKnown() {
			out = append(out, n)
		}
	}
	return out, nil
}
