package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/data/repos"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/redflag"
	"github.com/wonny/lianban/internal/scoring"
	"github.com/wonny/lianban/internal/signal"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/config"
	"github.com/wonny/lianban/pkg/database"
	"github.com/wonny/lianban/pkg/logger"
	"github.com/wonny/lianban/pkg/redis"
)

// app holds the shared dependencies of every command
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	strategy *strategyconfig.Config

	db  *database.DB  // nil: DATABASE_URL 미설정
	rdb *redis.Client // disabled client when REDIS_ENABLED=false

	runs    *repos.RunRepository
	signals *repos.SignalRepository
}

// newApp loads env config, the strategy YAML and optional DB/Redis
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
		cfg.Data.KlineFile = filepath.Join(dataDir, "kline_optimized", "kline_data.json")
	}

	log := logger.New(cfg)

	path := strategyFile
	if path == "" {
		path = cfg.StrategyConfig
	}
	strategy, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{cfg: cfg, log: log, strategy: strategy}

	db, err := database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrDisabled):
		log.Debug("Database disabled, running without persistence")
	case err != nil:
		return nil, fmt.Errorf("connect to database: %w", err)
	default:
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.runs = repos.NewRunRepository(db.Pool)
		a.signals = repos.NewSignalRepository(db.Pool)
	}

	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		// 캐시 없이 진행
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rdb, _ = redis.New(ctx, &config.Config{})
	}
	a.rdb = rdb

	return a, nil
}

// Close releases DB and Redis connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

// fileSource opens the history layout under the data dir, cached in Redis
// when enabled
func (a *app) fileSource() (contracts.BatchSource, error) {
	src, err := feed.OpenFileSource(a.cfg.Data.Dir, a.cfg.Data.KlineFile, a.log)
	if err != nil {
		return nil, err
	}
	return a.cached(src, "file"), nil
}

// zhituSource reads pools from the zhitu API (bars from the K-line file)
func (a *app) zhituSource() (contracts.BatchSource, error) {
	var klines *feed.KlineStore
	if store, err := feed.LoadKlineFile(a.cfg.Data.KlineFile); err == nil {
		klines = store
	} else {
		a.log.WithError(err).Warn("K-line file unavailable, running without bars")
	}
	client := feed.NewZhituClientFromConfig(a.cfg, a.rdb, a.log)
	return a.cached(feed.NewZhituSource(client, klines, a.log), "zhitu"), nil
}

func (a *app) cached(src feed.Source, name string) contracts.BatchSource {
	if a.rdb == nil || !a.rdb.Enabled() {
		return src
	}
	return feed.NewCachedSource(src, redis.NewCache(a.rdb, "lianban"), name, a.cfg.Redis.CacheTTL, a.log)
}

// source picks the batch source by name
func (a *app) source(name string) (contracts.BatchSource, error) {
	switch name {
	case "", "file":
		return a.fileSource()
	case "zhitu":
		return a.zhituSource()
	default:
		return nil, fmt.Errorf("unknown source %q (valid: file, zhitu)", name)
	}
}

// generator builds the signal pipeline from the strategy config
func (a *app) generator() *signal.Generator {
	return signal.NewGenerator(
		redflag.New(a.strategy.RedFlags),
		scoring.NewCalculator(a.strategy.Scoring),
		a.strategy,
		a.log,
	)
}
