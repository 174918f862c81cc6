// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxSink exports analytics records to InfluxDB for dashboarding. One
// point per record in the cardquery_queries measurement; label-like fields
// become tags so dashboards can group by them.
//
// # Thread Safety
//
// Safe for concurrent use; the blocking write API serializes internally.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink connects to InfluxDB. The caller should Close the sink at
// shutdown.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// Write exports one record.
func (s *InfluxSink) Write(ctx context.Context, rec Record) error {
	p := influxdb2.NewPointWithMeasurement("cardquery_queries").
		AddTag("intent", string(rec.Intent.Label)).
		AddTag("method", string(rec.Intent.Method)).
		AddTag("success", fmt.Sprintf("%t", rec.Success)).
		AddTag("failure_kind", string(rec.FailureKind)).
		AddField("response_time_ms", rec.ResponseTimeMs).
		AddField("entity_count", len(rec.Entities)).
		AddField("confidence", rec.Intent.Confidence).
		AddField("pattern_used", rec.PatternIDUsed != "").
		SetTime(rec.CreatedAt)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
