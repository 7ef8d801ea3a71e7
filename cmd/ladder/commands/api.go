package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/lianban/internal/api"
	"github.com/wonny/lianban/internal/api/handlers"
	"github.com/wonny/lianban/internal/backtest"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "HTTP API 서버",
	Long: `신호 조회와 백테스트 HTTP API 서버를 실행합니다.
SCHEDULER_ENABLED=true 이면 장 마감 작업 스케줄러도 함께 실행합니다.

Endpoints:
  GET  /health                 (postgres/redis probe)
  GET  /api/signals?date=YYYY-MM-DD&action=buy
  GET  /api/signals/stored?date=YYYY-MM-DD
  POST /api/backtest
  GET  /api/backtest/runs

Example:
  go run ./cmd/ladder api
  PORT=9000 go run ./cmd/ladder api --source zhitu`,
	RunE: runAPI,
}

var apiSource string

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiSource, "source", "file", "데이터 소스 (file|zhitu)")
}

func runAPI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.source(apiSource)
	if err != nil {
		return err
	}
	engine, err := backtest.NewEngine(src, a.strategy, a.log)
	if err != nil {
		return err
	}

	// typed nil 방지: DB 미설정이면 nil interface
	var store handlers.SignalStore
	var runs handlers.RunStore
	if a.signals != nil {
		store = a.signals
	}
	if a.runs != nil {
		runs = a.runs
	}

	router := api.NewRouter(
		handlers.NewSignalHandler(src, engine.Generator(), a.strategy, store, a.log),
		handlers.NewBacktestHandler(engine, runs, a.log),
		a.log,
		a.healthChecks()...,
	)

	if a.cfg.SchedulerEnabled {
		s, err := a.newScheduler()
		if err != nil {
			return err
		}
		s.Start()
		defer s.Stop()
		a.log.WithField("jobs", s.GetAllJobs()).Info("Scheduler started")
	}

	return api.New(a.cfg, a.log, router).Run(ctx, 10*time.Second)
}

// healthChecks probes only the dependencies that are configured
func (a *app) healthChecks() []api.HealthCheck {
	var checks []api.HealthCheck
	if a.db != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Probe: a.db.Ping})
	}
	if a.rdb != nil && a.rdb.Enabled() {
		checks = append(checks, api.HealthCheck{Name: "redis", Probe: a.rdb.Ping})
	}
	return checks
}
