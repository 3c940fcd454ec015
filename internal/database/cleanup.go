package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const pruneBatchSize = 1000

// CleanupService prunes cached geolocation rows that have not been seen for
// longer than the retention window.
type CleanupService struct {
	db        *gorm.DB
	logger    *pterm.Logger
	retention time.Duration
	interval  time.Duration

	mu             sync.Mutex
	lastRunTime    time.Time
	recordsDeleted int64
	totalDeleted   int64
}

// CleanupStats holds statistics about the last prune and the running total.
type CleanupStats struct {
	LastRunTime    time.Time
	RecordsDeleted int64
	TotalDeleted   int64
}

// NewCleanupService creates a cleanup service. retention <= 0 disables it.
func NewCleanupService(db *gorm.DB, logger *pterm.Logger, retention, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		db:        db,
		logger:    logger,
		retention: retention,
		interval:  interval,
	}
}

// Run prunes once at start and then every interval until ctx is cancelled.
func (s *CleanupService) Run(ctx context.Context) error {
	if s.retention <= 0 {
		s.logger.Debug("Geo cache retention disabled, cleanup service not started")
		return nil
	}

	s.logger.Info("Starting geo cache cleanup service",
		s.logger.Args("retention", s.retention, "interval", s.interval))

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.Prune(ctx, time.Now().Add(-s.retention)); err != nil && ctx.Err() == nil {
			s.logger.WithCaller().Error("Failed to prune geo cache", s.logger.Args("error", err))
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("Stopping geo cache cleanup service")
			return nil
		case <-t.C:
		}
	}
}

// Prune deletes rows last seen before cutoff in batches to avoid long locks.
func (s *CleanupService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	total := int64(0)

	for {
		result := s.db.WithContext(ctx).Exec(`
			DELETE FROM ip_info
			WHERE ip_address IN (
				SELECT ip_address FROM ip_info
				WHERE last_seen < ?
				LIMIT ?
			)
		`, cutoff.UTC(), pruneBatchSize)
		if result.Error != nil {
			return total, fmt.Errorf("delete expired geo entries: %w", result.Error)
		}

		total += result.RowsAffected
		if result.RowsAffected < pruneBatchSize {
			break
		}
		s.logger.Trace("Deleted batch", s.logger.Args("total_deleted", total))
	}

	s.mu.Lock()
	s.lastRunTime = start
	s.recordsDeleted = total
	s.totalDeleted += total
	s.mu.Unlock()

	if total > 0 {
		s.logger.Info("Geo cache cleanup completed",
			s.logger.Args(
				"records_deleted", total,
				"duration", time.Since(start).Round(time.Millisecond),
				"cutoff", cutoff.Format(time.DateTime),
			))
	}
	return total, nil
}

func (s *CleanupService) GetStats() CleanupStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CleanupStats{LastRunTime: s.lastRunTime, RecordsDeleted: s.recordsDeleted, TotalDeleted: s.totalDeleted}
}
