package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tlongwell-block/goose/internal/sessions"
)

func newTestScheduler(t *testing.T, runner RecipeRunner) (*CronScheduler, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore()
	sched := NewCronScheduler(runner, store)
	return sched, store
}

func TestAddValidatesCronExpression(t *testing.T) {
	sched, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "bad", Source: "r.yaml", Cron: "not a cron"})
	if err == nil {
		t.Fatal("expected malformed cron expression to be rejected")
	}

	if err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "ok", Source: "r.yaml", Cron: "0 6 * * *"}); err != nil {
		t.Fatal(err)
	}
	if err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "ok", Source: "r.yaml", Cron: "0 6 * * *"}); !errors.Is(err, ErrJobExists) {
		t.Errorf("duplicate id error = %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	sched, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	if err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "job-1", Source: "r.yaml", Cron: "@hourly"}); err != nil {
		t.Fatal(err)
	}

	jobs, err := sched.ListScheduledJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListScheduledJobs = %v, %v", jobs, err)
	}
	if jobs[0].ID != "job-1" || jobs[0].Paused {
		t.Errorf("unexpected job: %+v", jobs[0])
	}

	if err := sched.PauseSchedule(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	jobs, _ = sched.ListScheduledJobs(ctx)
	if !jobs[0].Paused {
		t.Error("job not paused")
	}

	if err := sched.UnpauseSchedule(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	jobs, _ = sched.ListScheduledJobs(ctx)
	if jobs[0].Paused {
		t.Error("job still paused")
	}

	if err := sched.RemoveScheduledJob(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if err := sched.RemoveScheduledJob(ctx, "job-1"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("remove missing job error = %v", err)
	}
}

func TestRunNowRecordsSession(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	runner := RecipeRunnerFunc(func(ctx context.Context, job ScheduledJob, sessionID string) error {
		started <- sessionID
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	sched, store := newTestScheduler(t, runner)
	ctx := context.Background()

	if err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "job-1", Source: "r.yaml", Cron: "@hourly"}); err != nil {
		t.Fatal(err)
	}

	sessionID, err := sched.RunNow(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	select {
	case got := <-started:
		if got != sessionID {
			t.Errorf("runner saw session %q, want %q", got, sessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}

	info, err := sched.GetRunningJobInfo(ctx, "job-1")
	if err != nil || info == nil {
		t.Fatalf("GetRunningJobInfo = %v, %v", info, err)
	}
	if info.SessionID != sessionID {
		t.Errorf("running session = %q", info.SessionID)
	}

	close(release)
	waitForStopped(t, sched, "job-1")

	info, err = sched.GetRunningJobInfo(ctx, "job-1")
	if err != nil || info != nil {
		t.Errorf("expected no running info after completion, got %v, %v", info, err)
	}

	jobs, _ := sched.ListScheduledJobs(ctx)
	if jobs[0].LastRun == nil {
		t.Error("LastRun not recorded")
	}

	summaries, err := sched.Sessions(ctx, "job-1", 10)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("Sessions = %v, %v", summaries, err)
	}
	if summaries[0].Name != sessionID {
		t.Errorf("session name = %q", summaries[0].Name)
	}
	_ = store
}

func TestKillRunningJob(t *testing.T) {
	var cancelled atomic.Bool
	runner := RecipeRunnerFunc(func(ctx context.Context, job ScheduledJob, sessionID string) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	sched, _ := newTestScheduler(t, runner)
	ctx := context.Background()

	if err := sched.AddScheduledJob(ctx, ScheduledJob{ID: "job-1", Source: "r.yaml", Cron: "@hourly"}); err != nil {
		t.Fatal(err)
	}

	if err := sched.KillRunningJob(ctx, "job-1"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("kill idle job error = %v", err)
	}

	if _, err := sched.RunNow(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	waitForRunning(t, sched, "job-1")

	if err := sched.KillRunningJob(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	waitForStopped(t, sched, "job-1")

	if !cancelled.Load() {
		t.Error("runner context was not cancelled")
	}
}

func TestTickLaunchesDueJobs(t *testing.T) {
	var clockMu sync.Mutex
	clock := time.Date(2025, 6, 1, 5, 59, 59, 0, time.UTC)
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		clock = clock.Add(d)
		clockMu.Unlock()
	}

	ran := make(chan struct{}, 1)
	runner := RecipeRunnerFunc(func(ctx context.Context, job ScheduledJob, sessionID string) error {
		ran <- struct{}{}
		return nil
	})

	store := sessions.NewMemoryStore()
	sched := NewCronScheduler(runner, store, WithClock(now))

	if err := sched.AddScheduledJob(context.Background(), ScheduledJob{ID: "daily", Source: "r.yaml", Cron: "0 6 * * *"}); err != nil {
		t.Fatal(err)
	}

	sched.Tick()
	select {
	case <-ran:
		t.Fatal("job ran before its schedule")
	case <-time.After(50 * time.Millisecond):
	}

	advance(2 * time.Second) // past 06:00
	sched.Tick()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("due job never ran")
	}
}

func waitForRunning(t *testing.T, sched *CronScheduler, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := sched.GetRunningJobInfo(context.Background(), id)
		if err == nil && info != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reported running")
}

func waitForStopped(t *testing.T, sched *CronScheduler, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := sched.GetRunningJobInfo(context.Background(), id)
		if err == nil && info == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never stopped")
}
