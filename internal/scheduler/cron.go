package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tlongwell-block/goose/internal/sessions"
)

// RecipeRunner executes one run of a scheduled job inside a session.
// Implementations load the recipe at job.Source and drive an agent with
// it; the session id identifies the run in the session store.
type RecipeRunner interface {
	Run(ctx context.Context, job ScheduledJob, sessionID string) error
}

// RecipeRunnerFunc adapts a function to a RecipeRunner.
type RecipeRunnerFunc func(ctx context.Context, job ScheduledJob, sessionID string) error

// Run executes the runner function.
func (f RecipeRunnerFunc) Run(ctx context.Context, job ScheduledJob, sessionID string) error {
	return f(ctx, job, sessionID)
}

// cronParser accepts standard 5-field cron expressions plus the
// @every/@hourly descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type cronEntry struct {
	job      ScheduledJob
	schedule cron.Schedule
	nextRun  time.Time

	// Set while a run is in flight.
	cancel    context.CancelFunc
	sessionID string
	startedAt time.Time
}

// CronScheduler is the in-process Scheduler implementation. It keeps jobs
// in memory, computes next runs with robfig/cron schedules, and executes
// due jobs on a tick loop.
type CronScheduler struct {
	runner       RecipeRunner
	sessionStore sessions.Store
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	jobs    map[string]*cronEntry
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// CronOption configures the scheduler.
type CronOption func(*CronScheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) CronOption {
	return func(s *CronScheduler) {
		if logger != nil {
			s.logger = logger.With("component", "scheduler")
		}
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) CronOption {
	return func(s *CronScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the poll interval.
func WithTickInterval(d time.Duration) CronOption {
	return func(s *CronScheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// NewCronScheduler creates a scheduler executing jobs with runner and
// recording runs in sessionStore.
func NewCronScheduler(runner RecipeRunner, sessionStore sessions.Store, opts ...CronOption) *CronScheduler {
	s := &CronScheduler{
		runner:       runner,
		sessionStore: sessionStore,
		logger:       slog.Default().With("component", "scheduler"),
		now:          time.Now,
		tickInterval: time.Second,
		jobs:         make(map[string]*cronEntry),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the tick loop. Safe to call once.
func (s *CronScheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop halts the tick loop and cancels in-flight runs.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	for _, entry := range s.jobs {
		if entry.cancel != nil {
			entry.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *CronScheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

// Tick runs one scheduling pass; exposed for tests driving a fake clock.
func (s *CronScheduler) Tick() { s.runDue() }

func (s *CronScheduler) runDue() {
	now := s.now()

	s.mu.Lock()
	var due []*cronEntry
	for _, entry := range s.jobs {
		if entry.job.Paused || entry.job.CurrentlyRunning {
			continue
		}
		if !entry.nextRun.After(now) {
			due = append(due, entry)
			entry.nextRun = entry.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, entry := range due {
		if _, err := s.launch(entry.job.ID); err != nil {
			s.logger.Error("failed to launch scheduled job", "job", entry.job.ID, "error", err)
		}
	}
}

// AddScheduledJob registers a job. The cron expression is validated here;
// a malformed expression is rejected at submission.
func (s *CronScheduler) AddScheduledJob(ctx context.Context, job ScheduledJob) error {
	schedule, err := cronParser.Parse(job.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	job.CurrentlyRunning = false
	job.CurrentSessionID = nil
	job.ProcessStartTime = nil
	s.jobs[job.ID] = &cronEntry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(s.now()),
	}
	s.logger.Info("scheduled job added", "job", job.ID, "cron", job.Cron, "source", job.Source)
	return nil
}

// ListScheduledJobs returns all registered jobs.
func (s *CronScheduler) ListScheduledJobs(ctx context.Context) ([]ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, entry := range s.jobs {
		jobs = append(jobs, entry.job)
	}
	return jobs, nil
}

// RemoveScheduledJob deletes a job, cancelling any in-flight run.
func (s *CronScheduler) RemoveScheduledJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return jobNotFound(id)
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	delete(s.jobs, id)
	return nil
}

// PauseSchedule stops future runs of a job.
func (s *CronScheduler) PauseSchedule(ctx context.Context, id string) error {
	return s.setPaused(id, true)
}

// UnpauseSchedule resumes future runs of a job.
func (s *CronScheduler) UnpauseSchedule(ctx context.Context, id string) error {
	return s.setPaused(id, false)
}

func (s *CronScheduler) setPaused(id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return jobNotFound(id)
	}
	entry.job.Paused = paused
	if !paused {
		entry.nextRun = entry.schedule.Next(s.now())
	}
	return nil
}

// RunNow launches a job immediately and returns the session id.
func (s *CronScheduler) RunNow(ctx context.Context, id string) (string, error) {
	return s.launch(id)
}

func (s *CronScheduler) launch(id string) (string, error) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return "", jobNotFound(id)
	}
	if entry.job.CurrentlyRunning {
		sid := ""
		if entry.job.CurrentSessionID != nil {
			sid = *entry.job.CurrentSessionID
		}
		s.mu.Unlock()
		return sid, nil
	}

	sessionID := uuid.NewString()
	startedAt := s.now()
	runCtx, cancel := context.WithCancel(context.Background())

	entry.job.CurrentlyRunning = true
	entry.job.CurrentSessionID = &sessionID
	entry.job.ProcessStartTime = &startedAt
	entry.cancel = cancel
	entry.sessionID = sessionID
	entry.startedAt = startedAt
	job := entry.job
	s.mu.Unlock()

	if s.sessionStore != nil {
		wd, _ := workingDir()
		_ = s.sessionStore.Upsert(runCtx, sessions.Metadata{
			ID:         sessionID,
			ScheduleID: id,
			WorkingDir: wd,
			UpdatedAt:  startedAt,
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		var err error
		if s.runner != nil {
			err = s.runner.Run(runCtx, job, sessionID)
		}
		if err != nil {
			s.logger.Error("scheduled job run failed", "job", id, "session", sessionID, "error", err)
		}

		finished := s.now()
		s.mu.Lock()
		if entry, ok := s.jobs[id]; ok {
			entry.job.CurrentlyRunning = false
			entry.job.CurrentSessionID = nil
			entry.job.ProcessStartTime = nil
			entry.job.LastRun = &finished
			entry.cancel = nil
		}
		s.mu.Unlock()
	}()

	return sessionID, nil
}

// Sessions lists past runs of a job from the session store.
func (s *CronScheduler) Sessions(ctx context.Context, id string, limit int) ([]SessionSummary, error) {
	if s.sessionStore == nil {
		return nil, nil
	}
	metas, err := s.sessionStore.ListBySchedule(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(metas))
	for _, meta := range metas {
		out = append(out, SessionSummary{
			Name:         meta.ID,
			MessageCount: meta.MessageCount,
			WorkingDir:   meta.WorkingDir,
		})
	}
	return out, nil
}

// UpdateSchedule replaces a job's cron expression.
func (s *CronScheduler) UpdateSchedule(ctx context.Context, id string, cronExpr string) error {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return jobNotFound(id)
	}
	entry.job.Cron = cronExpr
	entry.schedule = schedule
	entry.nextRun = schedule.Next(s.now())
	return nil
}

// KillRunningJob aborts the job's in-flight run.
func (s *CronScheduler) KillRunningJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return jobNotFound(id)
	}
	if !entry.job.CurrentlyRunning || entry.cancel == nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	entry.cancel()
	return nil
}

// GetRunningJobInfo returns info about the job's in-flight run.
func (s *CronScheduler) GetRunningJobInfo(ctx context.Context, id string) (*RunningJobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	if !entry.job.CurrentlyRunning {
		return nil, nil
	}
	return &RunningJobInfo{SessionID: entry.sessionID, StartedAt: entry.startedAt}, nil
}
