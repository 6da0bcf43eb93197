package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"
)

// EnsureMonthlyPartitions creates the traces partitions for the current
// month and monthsAhead future months. Idempotent; safe to call from
// startup and from the trace flusher around month boundaries. Rows for
// months without a dedicated partition land in traces_default.
func EnsureMonthlyPartitions(ctx context.Context, db *stdsql.DB, monthsAhead int) error {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= monthsAhead; i++ {
		from := start.AddDate(0, i, 0)
		to := from.AddDate(0, 1, 0)
		name := fmt.Sprintf("traces_y%04dm%02d", from.Year(), int(from.Month()))

		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF traces FOR VALUES FROM ('%s') TO ('%s')`,
			name,
			from.Format("2006-01-02"),
			to.Format("2006-01-02"),
		)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create partition %s: %w", name, err)
		}
	}
	return nil
}
