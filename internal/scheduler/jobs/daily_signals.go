package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/signal"
	"github.com/wonny/lianban/pkg/logger"
)

// Clock returns the current trade date
type Clock interface {
	Today() time.Time
}

// MarketClock is the wall clock in the exchange time zone
type MarketClock struct {
	Location *time.Location
	Now      func() time.Time // nil: time.Now
}

// Today returns the local calendar date as a UTC midnight
func (c MarketClock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now()
	if c.Location != nil {
		t = t.In(c.Location)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SignalSaver persists one day of signals
type SignalSaver interface {
	SaveSignals(ctx context.Context, date time.Time, signals []contracts.Signal) error
}

// SourceFactory opens a fresh source per run so pools archived earlier in
// the day are not hidden by a cached miss
type SourceFactory func() contracts.BatchSource

// DailySignalJob generates and stores the day's signals after the close
// ⭐ SSOT: 일별 신호 생성 스케줄은 이 Job에서만
type DailySignalJob struct {
	sources   SourceFactory
	generator *signal.Generator
	store     SignalSaver // nil: 로그만
	clock     Clock
	logger    *logger.Logger
}

// NewDailySignalJob creates a new daily signal job. store may be nil.
func NewDailySignalJob(sources SourceFactory, generator *signal.Generator, store SignalSaver, clock Clock, log *logger.Logger) *DailySignalJob {
	if log == nil {
		log = logger.Nop()
	}
	return &DailySignalJob{
		sources:   sources,
		generator: generator,
		store:     store,
		clock:     clock,
		logger:    log,
	}
}

// Name returns the job name
func (j *DailySignalJob) Name() string {
	return "daily_signals"
}

// Schedule returns the cron schedule (weekdays 15:40 Asia/Shanghai)
func (j *DailySignalJob) Schedule() string {
	return "0 40 15 * * 1-5"
}

// Run loads today's batch, generates signals with a fresh account and
// stores them
func (j *DailySignalJob) Run(ctx context.Context) error {
	date := j.clock.Today()
	log := j.logger.WithDate(date)

	batch, err := j.sources().Load(ctx, date)
	if errors.Is(err, feed.ErrNoData) {
		log.Info("No batch today, skipping signal generation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}

	signals := j.generator.Generate(date, batch.Snapshots, nil)
	counts := contracts.CountByAction(signals)

	fields := map[string]interface{}{
		"candidates": len(batch.Snapshots),
		"buy":        counts[contracts.ActionBuy],
		"hold":       counts[contracts.ActionHold],
		"skip":       counts[contracts.ActionSkip],
	}
	if batch.Sentiment != nil {
		fields["heat_index"] = batch.Sentiment.HeatIndex
	}

	if j.store != nil {
		if err := j.store.SaveSignals(ctx, date, signals); err != nil {
			return fmt.Errorf("save signals: %w", err)
		}
	}

	log.WithFields(fields).Info("Daily signals generated")
	for _, s := range signal.Buys(signals) {
		log.WithCode(s.Code).WithFields(map[string]interface{}{
			"name":     s.Name,
			"score":    s.Score,
			"boards":   s.Boards,
			"fraction": s.Fraction,
		}).Info("Buy signal")
	}
	return nil
}
