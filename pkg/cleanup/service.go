// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/axongate/axon/ent"
	entconversation "github.com/axongate/axon/ent/conversation"
	"github.com/axongate/axon/pkg/database"
)

// Config holds retention settings. Zero values disable the
// corresponding sweep.
type Config struct {
	// ConversationRetentionDays deletes conversations idle longer than
	// this many days (messages and snapshots cascade).
	ConversationRetentionDays int
	// TraceRetentionMonths drops monthly trace partitions older than
	// this many months.
	TraceRetentionMonths int
	// Interval between sweeps.
	Interval time.Duration
}

// Service periodically enforces retention policies:
//   - Deletes conversations idle past the retention window
//   - Drops trace partitions older than the retention window
//   - Ensures upcoming monthly trace partitions exist
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	cfg    Config
	client *ent.Client
	db     *stdsql.DB

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg Config, client *ent.Client, db *stdsql.DB) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	return &Service{
		cfg:    cfg,
		client: client,
		db:     db,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"conversation_retention_days", s.cfg.ConversationRetentionDays,
		"trace_retention_months", s.cfg.TraceRetentionMonths,
		"interval", s.cfg.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteIdleConversations(ctx)
	s.dropExpiredTracePartitions(ctx)
	s.ensureUpcomingTracePartitions(ctx)
}

// deleteIdleConversations removes conversations whose last_active_at is
// past the retention window. Messages and snapshots cascade.
func (s *Service) deleteIdleConversations(ctx context.Context) {
	if s.cfg.ConversationRetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.cfg.ConversationRetentionDays)

	count, err := s.client.Conversation.Delete().
		Where(entconversation.LastActiveAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("Retention: conversation cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted idle conversations", "count", count, "cutoff", cutoff)
	}
}

// dropExpiredTracePartitions drops traces_yYYYYmMM partitions whose
// month ended before the retention window.
func (s *Service) dropExpiredTracePartitions(ctx context.Context) {
	if s.cfg.TraceRetentionMonths <= 0 {
		return
	}
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, -s.cfg.TraceRetentionMonths, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE tablename LIKE 'traces_y%'`)
	if err != nil {
		slog.Error("Retention: failed to list trace partitions", "error", err)
		return
	}
	defer func() { _ = rows.Close() }()

	var expired []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			slog.Error("Retention: failed to scan partition name", "error", err)
			return
		}
		var year, month int
		if _, err := fmt.Sscanf(name, "traces_y%4dm%2d", &year, &month); err != nil {
			continue
		}
		partitionStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		// The whole month must be past the cutoff before dropping.
		if !partitionStart.AddDate(0, 1, 0).After(cutoff) {
			expired = append(expired, name)
		}
	}
	if err := rows.Err(); err != nil {
		slog.Error("Retention: partition listing failed", "error", err)
		return
	}

	for _, name := range expired {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
			slog.Error("Retention: failed to drop trace partition", "partition", name, "error", err)
			continue
		}
		slog.Info("Retention: dropped trace partition", "partition", name)
	}
}

// ensureUpcomingTracePartitions keeps near-future partitions created so
// the month boundary never lands traces in traces_default.
func (s *Service) ensureUpcomingTracePartitions(ctx context.Context) {
	if err := database.EnsureMonthlyPartitions(ctx, s.db, 2); err != nil {
		slog.Error("Retention: failed to ensure trace partitions", "error", err)
	}
}
