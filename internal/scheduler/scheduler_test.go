package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name     string
	schedule string
	failures int32 // fail this many times before succeeding
	calls    atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }
func (j *countingJob) Run(context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestScheduler() *Scheduler {
	shanghai := time.FixedZone("CST", 8*3600)
	return New(nil, shanghai, WithRetry(2, time.Millisecond))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&countingJob{name: "b", schedule: "0 40 15 * * 1-5"}))
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))

	err := s.AddJob(&countingJob{name: "a", schedule: "@daily"})
	assert.ErrorContains(t, err, "already exists")

	err = s.AddJob(&countingJob{name: "bad", schedule: "not a schedule"})
	assert.ErrorContains(t, err, "failed to schedule")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	_, ok := s.NextRun("a")
	assert.False(t, ok)

	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJobSync_Retries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		success   bool
		wantCalls int32
	}{
		{"first try", 0, true, 1},
		{"after retries", 2, true, 3},
		{"exhausted", 5, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler()
			job := &countingJob{name: "j", schedule: "@daily", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunJobSync("j")
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
			assert.Equal(t, tt.wantCalls, job.calls.Load())
			if !tt.success {
				assert.Equal(t, "transient", result.Error)
			}

			history, err := s.GetJobHistory("j")
			require.NoError(t, err)
			last, ok := history.Last()
			require.True(t, ok)
			assert.Equal(t, tt.success, last.Success)
		})
	}

	_, err := newTestScheduler().RunJobSync("missing")
	assert.Error(t, err)
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "ok", schedule: "0 40 15 * * 1-5"}
	bad := &countingJob{name: "bad", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	s.RunJobSync("ok")
	s.RunJobSync("ok")
	s.RunJobSync("bad")

	stats := s.GetJobStats()
	require.Len(t, stats, 2)

	assert.Equal(t, 2, stats["ok"].TotalRuns)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)
	assert.Equal(t, "0 40 15 * * 1-5", stats["ok"].Schedule)

	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
}

func TestNextRun_UsesLocation(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "daily", schedule: "0 40 15 * * 1-5"}))

	s.Start()
	defer s.Stop()

	next, ok := s.NextRun("daily")
	require.True(t, ok)
	local := next.In(time.FixedZone("CST", 8*3600))
	assert.Equal(t, 15, local.Hour())
	assert.Equal(t, 40, local.Minute())
	assert.NotEqual(t, time.Saturday, local.Weekday())
	assert.NotEqual(t, time.Sunday, local.Weekday())
}

func TestStop_CancelsRetries(t *testing.T) {
	s := New(nil, time.UTC, WithRetry(5, time.Hour))
	job := &countingJob{name: "slow", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("slow"))
	require.Eventually(t, func() bool { return job.calls.Load() >= 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the retry wait")
	}
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}

	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.Len(t, h.GetLatestResults(1000), maxHistory)
	assert.Empty(t, h.GetLatestResults(0))
	assert.Len(t, h.GetFailedResults(), maxHistory/2)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
