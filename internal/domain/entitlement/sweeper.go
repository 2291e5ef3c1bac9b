package entitlement

import (
	"context"
	"time"

	"github.com/saulpulido52/litam-sub010/pkg/logger"
)

const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultSweepBatchSize = 500
)

// Sweeper periodically expires lapsed subscriptions. Each batch is its
// own short transaction so the sweep never holds locks long enough to
// starve consultation or cancel traffic. Re-running over already-expired
// rows is a no-op.
type Sweeper struct {
	repo      Repository
	log       logger.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(repo Repository, log logger.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &Sweeper{
		repo:      repo,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper: started", "interval", s.interval.String(), "batch_size", s.batchSize)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper: stopped")
			return
		case <-ticker.C:
			expired, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.InternalError("sweeper: sweep failed", err, "expired_before_failure", expired)
				continue
			}
			if expired > 0 {
				s.log.Info("sweeper: expired subscriptions", "count", expired)
			}
		}
	}
}

// SweepOnce expires every lapsed active subscription in bounded batches
// and returns the total number expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := s.repo.ExpireBatch(ctx, s.now(), s.batchSize)
		total += expired
		if err != nil {
			return total, err
		}
		if expired < int64(s.batchSize) {
			return total, nil
		}
	}
}
