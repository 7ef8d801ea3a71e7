package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/scheduler"
	"github.com/wonny/lianban/internal/scheduler/jobs"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "장 마감 후 일별 작업 스케줄러",
	Long: `장 마감 후 股池 저장과 신호 생성을 실행합니다 (Asia/Shanghai, 평일).

Jobs:
  pool_archive    15:35  涨停/跌停/炸板 股池 저장
  daily_signals   15:40  당일 신호 생성 및 저장

Example:
  go run ./cmd/ladder scheduler start
  go run ./cmd/ladder scheduler list
  go run ./cmd/ladder scheduler run daily_signals`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 실행 (Ctrl+C 종료)",
		RunE:  runSchedulerStart,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업과 다음 실행 시각",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run <job>",
		Short: "작업 즉시 1회 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the after-close jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(a.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.cfg.Timezone, err)
	}
	clock := jobs.MarketClock{Location: loc}

	var klines *feed.KlineStore
	if store, err := feed.LoadKlineFile(a.cfg.Data.KlineFile); err == nil {
		klines = store
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	dir := a.cfg.Data.Dir
	sources := func() contracts.BatchSource {
		return feed.NewFileSource(dir, klines, a.log)
	}

	// typed nil 방지
	var saver jobs.SignalSaver
	if a.signals != nil {
		saver = a.signals
	}

	s := scheduler.New(a.log, loc, scheduler.WithRetry(3, time.Minute))
	client := feed.NewZhituClientFromConfig(a.cfg, a.rdb, a.log)
	if err := s.AddJob(jobs.NewPoolArchiveJob(client, dir, clock, a.log)); err != nil {
		return nil, err
	}
	if err := s.AddJob(jobs.NewDailySignalJob(sources, a.generator(), saver, clock, a.log)); err != nil {
		return nil, err
	}
	return s, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.newScheduler()
	if err != nil {
		return err
	}

	s.Start()
	printSchedule(s)
	<-ctx.Done()
	s.Stop()

	PrintSuccess("Scheduler stopped")
	return nil
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.newScheduler()
	if err != nil {
		return err
	}

	// cron entries only have a next time once started
	s.Start()
	defer s.Stop()
	printSchedule(s)
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.newScheduler()
	if err != nil {
		return err
	}
	defer s.Stop()

	result, err := s.RunJobSync(args[0])
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s failed: %s", args[0], result.Error)
	}
	PrintSuccess(fmt.Sprintf("%s done in %s", args[0], result.Duration.Round(time.Millisecond)))
	return nil
}

func printSchedule(s *scheduler.Scheduler) {
	PrintHeader("Scheduler")
	widths := []int{16, 20, 25}
	PrintTableHeader([]string{"JOB", "SCHEDULE", "NEXT RUN"}, widths)
	for _, name := range s.GetAllJobs() {
		next := "-"
		if t, ok := s.NextRun(name); ok && !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05 MST")
		}
		schedule := ""
		if stats, ok := s.GetJobStats()[name]; ok {
			schedule = stats.Schedule
		}
		PrintTableRow([]string{name, schedule, next}, widths)
	}
	fmt.Println()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
