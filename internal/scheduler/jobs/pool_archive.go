package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/pkg/logger"
)

// PoolFetcher downloads one zhitu pool
type PoolFetcher interface {
	FetchPool(ctx context.Context, kind feed.PoolKind, date time.Time) ([]feed.PoolRecord, error)
}

// PoolArchiveJob saves the day's pools to the history layout after the close
// ⭐ SSOT: 일별 股池 저장 스케줄은 이 Job에서만
type PoolArchiveJob struct {
	fetcher PoolFetcher
	dir     string
	clock   Clock
	logger  *logger.Logger
}

// NewPoolArchiveJob creates a new pool archive job
func NewPoolArchiveJob(fetcher PoolFetcher, dir string, clock Clock, log *logger.Logger) *PoolArchiveJob {
	if log == nil {
		log = logger.Nop()
	}
	return &PoolArchiveJob{fetcher: fetcher, dir: dir, clock: clock, logger: log}
}

// Name returns the job name
func (j *PoolArchiveJob) Name() string {
	return "pool_archive"
}

// Schedule returns the cron schedule (weekdays 15:35, after the close)
func (j *PoolArchiveJob) Schedule() string {
	return "0 35 15 * * 1-5"
}

// Run fetches limit-up, limit-down and explode pools for today.
// A missing limit-up pool means 休市 and is not an error.
func (j *PoolArchiveJob) Run(ctx context.Context) error {
	date := j.clock.Today()
	log := j.logger.WithDate(date)

	for _, kind := range []feed.PoolKind{feed.PoolLimitUp, feed.PoolLimitDown, feed.PoolExplode} {
		records, err := j.fetcher.FetchPool(ctx, kind, date)
		if errors.Is(err, feed.ErrNoData) {
			if kind == feed.PoolLimitUp {
				log.Info("No limit-up pool today, market closed")
				return nil
			}
			log.WithField("pool", string(kind)).Debug("Pool empty")
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch %s pool: %w", kind, err)
		}

		path, err := feed.WritePool(j.dir, kind, date, records)
		if err != nil {
			return err
		}
		log.WithFields(map[string]interface{}{
			"pool":  string(kind),
			"count": len(records),
			"path":  path,
		}).Info("Pool archived")
	}
	return nil
}
