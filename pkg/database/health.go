package database

import (
	"context"
	stdsql "database/sql"
	"time"
)

// HealthStatus describes database connectivity for the health endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// Health pings the database and reports connectivity.
func Health(ctx context.Context, db *stdsql.DB) (HealthStatus, error) {
	start := time.Now()
	err := db.PingContext(ctx)
	status := HealthStatus{
		Status:    "up",
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Status = "down"
		return status, err
	}
	return status, nil
}
