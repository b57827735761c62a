package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
)

func newLocks(t *testing.T) (*distlock.Factory, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return distlock.NewFactory(client, nil, time.Minute), client
}

type fakeRunner struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]error
}

func (f *fakeRunner) RunOnce(_ context.Context, trainerID string) (domain.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, trainerID)
	if err := f.fail[trainerID]; err != nil {
		return domain.RunReport{}, err
	}
	return domain.RunReport{TrainerID: trainerID}, nil
}

type fakeLister struct {
	ids []string
	err error
	got bool
}

func (f *fakeLister) ListEnabledTrainers(_ context.Context, defaultEnabled bool) ([]string, error) {
	f.got = defaultEnabled
	return f.ids, f.err
}

func TestNudgeScheduler_Tick(t *testing.T) {
	locks, _ := newLocks(t)
	runner := &fakeRunner{fail: map[string]error{"t2": errors.New("db down")}}
	lister := &fakeLister{ids: []string{"t1", "t2", "t3"}}

	s := NewNudgeScheduler(runner, lister, locks, time.Hour, true)
	sum := s.Tick(context.Background())

	assert.True(t, lister.got)
	assert.Equal(t, []string{"t1", "t2", "t3"}, runner.ran, "a failing trainer does not stop the rest")
	assert.Equal(t, TickSummary{Trainers: 3, Ran: 2, Failed: 1}, sum)
}

func TestNudgeScheduler_SkipsLockedTrainer(t *testing.T) {
	locks, _ := newLocks(t)
	ctx := context.Background()

	held := locks.New(distlock.TrainerRunKey("t1"))
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	runner := &fakeRunner{}
	s := NewNudgeScheduler(runner, &fakeLister{ids: []string{"t1", "t2"}}, locks, time.Hour, false)
	sum := s.Tick(ctx)

	assert.Equal(t, []string{"t2"}, runner.ran)
	assert.Equal(t, 1, sum.Locked)
	assert.Equal(t, 1, sum.Ran)

	require.NoError(t, held.Release(ctx))
	require.NoError(t, s.RunTrainer(ctx, "t1"))
	assert.Equal(t, []string{"t2", "t1"}, runner.ran)
}

func TestNudgeScheduler_ListFailure(t *testing.T) {
	locks, _ := newLocks(t)
	runner := &fakeRunner{}
	s := NewNudgeScheduler(runner, &fakeLister{err: errors.New("boom")}, locks, 0, false)

	sum := s.Tick(context.Background())
	assert.Equal(t, TickSummary{}, sum)
	assert.Empty(t, runner.ran)
	assert.Equal(t, DefaultSchedulerInterval, s.interval)
}

func TestNudgeScheduler_StartStopsOnCancel(t *testing.T) {
	locks, _ := newLocks(t)
	runner := &fakeRunner{}
	s := NewNudgeScheduler(runner, &fakeLister{ids: []string{"t1"}}, locks, time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.ran) == 1
	}, time.Second, 10*time.Millisecond, "first tick runs immediately")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

type fakeDispatcher struct {
	calls int
	err   error
}

func (f *fakeDispatcher) DispatchDue(context.Context) (domain.DispatchReport, error) {
	f.calls++
	return domain.DispatchReport{Due: 2, Sent: 2}, f.err
}

func TestDispatchWorker_Tick(t *testing.T) {
	locks, _ := newLocks(t)
	d := &fakeDispatcher{}
	w := NewDispatchWorker(d, locks, 0)

	report, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, DefaultDispatchInterval, w.interval)
}

func TestDispatchWorker_LockHeld(t *testing.T) {
	locks, _ := newLocks(t)
	ctx := context.Background()
	held := locks.New(distlock.DispatchKey)
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	d := &fakeDispatcher{}
	_, err = NewDispatchWorker(d, locks, time.Minute).Tick(ctx)
	assert.ErrorIs(t, err, distlock.ErrNotAcquired)
	assert.Zero(t, d.calls)
}

func TestDispatchWorker_Error(t *testing.T) {
	locks, _ := newLocks(t)
	d := &fakeDispatcher{err: errors.New("list due")}
	_, err := NewDispatchWorker(d, locks, time.Minute).Tick(context.Background())
	assert.EqualError(t, err, "list due")

	// the lock is released after a failed pass
	d.err = nil
	_, err = NewDispatchWorker(d, locks, time.Minute).Tick(context.Background())
	assert.NoError(t, err)
}

type fakePurger struct {
	before time.Time
	batch  int
	n      int
	err    error
}

func (f *fakePurger) PurgeTerminal(_ context.Context, before time.Time, batch int) (int, error) {
	f.before, f.batch = before, batch
	return f.n, f.err
}

func TestCampaignRetention_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	p := &fakePurger{n: 12}
	w := NewCampaignRetentionWorker(p, 90*24*time.Hour)
	w.now = func() time.Time { return now }

	assert.Equal(t, 12, w.Cleanup(context.Background()))
	assert.Equal(t, now.AddDate(0, 0, -90), p.before)
	assert.Equal(t, retentionBatchSize, p.batch)

	p.n, p.err = 3, errors.New("timeout")
	assert.Equal(t, 3, w.Cleanup(context.Background()))
}
