package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anri-helpdesk/helpdesk/internal/logger"
	"github.com/anri-helpdesk/helpdesk/internal/repository/memory"
	"github.com/anri-helpdesk/helpdesk/internal/runner"
)

type fakeCleaner struct {
	n   int
	err error
}

func (f *fakeCleaner) Cleanup(context.Context) (int, error) { return f.n, f.err }

type purgeCounter struct{ total int }

func (p *purgeCounter) TempPurged(n int) { p.total += n }

func TestTempCleanupTask(t *testing.T) {
	obs := &purgeCounter{}
	task := NewTempCleanupTask(&fakeCleaner{n: 4}, "0 */15 * * * *", obs, logger.Discard())

	assert.Equal(t, TempCleanupName, task.Name())
	assert.Equal(t, "0 */15 * * * *", task.Schedule())
	assert.Positive(t, task.Timeout())

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 4, obs.total)
}

func TestTempCleanupTaskError(t *testing.T) {
	obs := &purgeCounter{}
	task := NewTempCleanupTask(&fakeCleaner{n: 1, err: errors.New("disk gone")}, "", obs, logger.Discard())

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Equal(t, 1, obs.total)
}

func TestLoginCleanupTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()

	require.NoError(t, store.UpsertBan(ctx, "10.0.0.1", 7, now.Add(-2*time.Hour)))
	require.NoError(t, store.UpsertBan(ctx, "10.0.0.2", 7, now.Add(-10*time.Minute)))

	task := NewLoginCleanupTask(store, 60, "0 0 * * * *", logger.Discard()).WithClock(func() time.Time { return now })
	require.NoError(t, task.Run(ctx))

	_, ok := store.Login("10.0.0.1")
	assert.False(t, ok)
	_, ok = store.Login("10.0.0.2")
	assert.True(t, ok)
}

type taskCounter struct {
	runs map[string]int
	errs int
}

func (c *taskCounter) TaskRun(task string, err error) {
	c.runs[task]++
	if err != nil {
		c.errs++
	}
}

func TestRunnerRunOnce(t *testing.T) {
	reg := runner.NewTaskRegistry()
	reg.Register(NewTempCleanupTask(&fakeCleaner{n: 2}, "", nil, logger.Discard()))
	reg.Register(NewLoginCleanupTask(memory.NewStore(), 60, "", logger.Discard()))

	obs := &taskCounter{runs: map[string]int{}}
	r := runner.NewRunner(reg, logger.Discard(), obs)

	assert.Equal(t, []string{LoginCleanupName, TempCleanupName}, reg.Names())
	assert.Empty(t, reg.Scheduled())
	require.NoError(t, r.RunOnce(context.Background(), TempCleanupName))
	require.NoError(t, r.RunOnce(context.Background(), LoginCleanupName))
	assert.Error(t, r.RunOnce(context.Background(), "nope"))

	assert.Equal(t, 1, obs.runs[TempCleanupName])
	assert.Equal(t, 1, obs.runs[LoginCleanupName])
	assert.Zero(t, obs.errs)
}

func TestRunnerStartStopsWithContext(t *testing.T) {
	reg := runner.NewTaskRegistry()
	reg.Register(NewTempCleanupTask(&fakeCleaner{}, "0 0 0 1 1 *", nil, logger.Discard()))
	r := runner.NewRunner(reg, logger.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	reg := runner.NewTaskRegistry()
	reg.Register(NewTempCleanupTask(&fakeCleaner{}, "not a cron", nil, logger.Discard()))
	r := runner.NewRunner(reg, logger.Discard(), nil)

	err := r.Start(context.Background())
	assert.Error(t, err)
}
