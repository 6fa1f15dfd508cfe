package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// expectedTables is the model-backed table set checked at startup.
var expectedTables = []string{
	"sources", "raw_items", "events", "event_items",
	"trends", "trend_definition_versions", "trend_evidence",
	"trend_snapshots", "trend_outcomes", "human_feedback",
	"api_usage", "taxonomy_gaps",
}

// HealthStatus reports connectivity and latency.
type HealthStatus struct {
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// Health pings the database and measures round-trip latency.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := c.pool.Ping(ctx)
	status := HealthStatus{
		Reachable: err == nil,
		Latency:   time.Since(start),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// ValidateSchema checks that every model-backed table exists after
// migrations. In strict mode a mismatch fails startup; otherwise it is
// logged and startup continues.
func (c *Client) ValidateSchema(ctx context.Context, strict bool) error {
	var missing []string
	for _, table := range expectedTables {
		var exists bool
		err := c.pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("schema validation query failed for %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) == 0 {
		return nil
	}
	if strict {
		return fmt.Errorf("schema parity check failed, missing tables: %v", missing)
	}
	slog.Warn("Schema parity check found missing tables", "tables", missing)
	return nil
}
