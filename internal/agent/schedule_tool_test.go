package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tlongwell-block/goose/internal/scheduler"
	"github.com/tlongwell-block/goose/pkg/models"
)

// mockScheduler records calls for the schedule tool tests.
type mockScheduler struct {
	mu      sync.Mutex
	jobs    []scheduler.ScheduledJob
	paused  map[string]bool
	killed  []string
	running map[string]scheduler.RunningJobInfo
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{
		paused:  make(map[string]bool),
		running: make(map[string]scheduler.RunningJobInfo),
	}
}

func (m *mockScheduler) AddScheduledJob(ctx context.Context, job scheduler.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == job.ID {
			return fmt.Errorf("%w: %s", scheduler.ErrJobExists, job.ID)
		}
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockScheduler) ListScheduledJobs(ctx context.Context) ([]scheduler.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduler.ScheduledJob(nil), m.jobs...), nil
}

func (m *mockScheduler) RemoveScheduledJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, id)
}

func (m *mockScheduler) PauseSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[id] = true
	return nil
}

func (m *mockScheduler) UnpauseSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[id] = false
	return nil
}

func (m *mockScheduler) RunNow(ctx context.Context, id string) (string, error) {
	return "sess-42", nil
}

func (m *mockScheduler) Sessions(ctx context.Context, id string, limit int) ([]scheduler.SessionSummary, error) {
	if id == "empty_job" {
		return nil, nil
	}
	return []scheduler.SessionSummary{
		{Name: id + "_session1", MessageCount: 4, WorkingDir: "/tmp"},
	}, nil
}

func (m *mockScheduler) UpdateSchedule(ctx context.Context, id string, cron string) error { return nil }

func (m *mockScheduler) KillRunningJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = append(m.killed, id)
	return nil
}

func (m *mockScheduler) GetRunningJobInfo(ctx context.Context, id string) (*scheduler.RunningJobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.running[id]; ok {
		return &info, nil
	}
	return nil, nil
}

func scheduleArgs(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func scheduleText(t *testing.T, content []models.Content, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return models.ConcatText(content)
}

func TestScheduleToolNoScheduler(t *testing.T) {
	a := New()
	_, err := a.handleScheduleManagement(context.Background(), scheduleArgs(t, map[string]any{"action": "list"}))
	if err == nil || !strings.Contains(err.Error(), "Scheduler not available. This tool only works in server mode.") {
		t.Errorf("err = %v", err)
	}
}

func TestScheduleToolList(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())

	content, err := a.handleScheduleManagement(context.Background(),
		scheduleArgs(t, map[string]any{"action": "list"}))
	text := scheduleText(t, content, err)
	if !strings.HasPrefix(text, "Scheduled Jobs:") {
		t.Errorf("text = %q", text)
	}
}

func TestScheduleToolUnknownAction(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())

	_, err := a.handleScheduleManagement(context.Background(),
		scheduleArgs(t, map[string]any{"action": "explode"}))
	if err == nil || !strings.Contains(err.Error(), "Unknown action: explode") {
		t.Errorf("err = %v", err)
	}
}

func TestScheduleToolMissingParameters(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())
	ctx := context.Background()

	_, err := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'action' parameter") {
		t.Errorf("missing action err = %v", err)
	}

	_, err = a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{"action": "run_now"}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'job_id' parameter") {
		t.Errorf("missing job_id err = %v", err)
	}

	_, err = a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{"action": "create"}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'recipe_path' parameter") {
		t.Errorf("missing recipe_path err = %v", err)
	}

	_, err = a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "create", "recipe_path": "/tmp/x.yaml",
	}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'cron_expression' parameter") {
		t.Errorf("missing cron_expression err = %v", err)
	}
}

func TestScheduleToolCreateRoundTrip(t *testing.T) {
	a := New()
	mock := newMockScheduler()
	a.SetScheduler(mock)
	ctx := context.Background()

	recipePath := filepath.Join(t.TempDir(), "recipe.yaml")
	if err := os.WriteFile(recipePath, []byte("title: Temp\ndescription: Temp Desc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action":          "create",
		"recipe_path":     recipePath,
		"cron_expression": "0 6 * * *",
	}))
	text := scheduleText(t, content, err)
	if !strings.Contains(text, "Successfully created scheduled job 'agent_created_") {
		t.Errorf("create text = %q", text)
	}
	if !strings.Contains(text, fmt.Sprintf("for recipe '%s' with cron expression '0 6 * * *'", recipePath)) {
		t.Errorf("create text = %q", text)
	}

	// list shows the job; pause → unpause → delete cleans up.
	listContent, listErr := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{"action": "list"}))
	listText := scheduleText(t, listContent, listErr)
	if !strings.Contains(listText, "agent_created_") {
		t.Errorf("list text = %q", listText)
	}

	jobs, _ := mock.ListScheduledJobs(ctx)
	jobID := jobs[0].ID

	pauseContent, pauseErr := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "pause", "job_id": jobID,
	}))
	pauseText := scheduleText(t, pauseContent, pauseErr)
	if pauseText != fmt.Sprintf("Successfully paused job '%s'", jobID) {
		t.Errorf("pause text = %q", pauseText)
	}

	unpauseContent, unpauseErr := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "unpause", "job_id": jobID,
	}))
	unpauseText := scheduleText(t, unpauseContent, unpauseErr)
	if unpauseText != fmt.Sprintf("Successfully unpaused job '%s'", jobID) {
		t.Errorf("unpause text = %q", unpauseText)
	}

	deleteContent, deleteErr := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "delete", "job_id": jobID,
	}))
	deleteText := scheduleText(t, deleteContent, deleteErr)
	if deleteText != fmt.Sprintf("Successfully deleted job '%s'", jobID) {
		t.Errorf("delete text = %q", deleteText)
	}

	jobs, _ = mock.ListScheduledJobs(ctx)
	if len(jobs) != 0 {
		t.Errorf("jobs after delete = %+v", jobs)
	}
}

func TestScheduleToolCreateRejectsBadRecipe(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())
	ctx := context.Background()

	_, err := a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "create", "recipe_path": "/nonexistent/recipe.yaml", "cron_expression": "* * * * *",
	}))
	if err == nil || !strings.Contains(err.Error(), "Recipe file not found:") {
		t.Errorf("missing file err = %v", err)
	}

	badJSON := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badJSON, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = a.handleScheduleManagement(ctx, scheduleArgs(t, map[string]any{
		"action": "create", "recipe_path": badJSON, "cron_expression": "* * * * *",
	}))
	if err == nil || !strings.Contains(err.Error(), "Invalid JSON recipe:") {
		t.Errorf("bad json err = %v", err)
	}
}

func TestScheduleToolRunNow(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())

	content, err := a.handleScheduleManagement(context.Background(),
		scheduleArgs(t, map[string]any{"action": "run_now", "job_id": "x"}))
	text := scheduleText(t, content, err)
	if !strings.Contains(text, "Successfully started job 'x'. Session ID: sess-42") {
		t.Errorf("text = %q", text)
	}
}

func TestScheduleToolKill(t *testing.T) {
	a := New()
	mock := newMockScheduler()
	a.SetScheduler(mock)

	content, err := a.handleScheduleManagement(context.Background(),
		scheduleArgs(t, map[string]any{"action": "kill", "job_id": "x"}))
	text := scheduleText(t, content, err)
	if text != "Successfully killed running job 'x'" {
		t.Errorf("text = %q", text)
	}
	if len(mock.killed) != 1 || mock.killed[0] != "x" {
		t.Errorf("killed = %v", mock.killed)
	}
}

func TestScheduleToolInspect(t *testing.T) {
	a := New()
	mock := newMockScheduler()
	started := time.Now().Add(-90 * time.Second)
	mock.running["running_job"] = scheduler.RunningJobInfo{SessionID: "running_session", StartedAt: started}
	a.SetScheduler(mock)
	ctx := context.Background()

	content, err := a.handleScheduleManagement(ctx,
		scheduleArgs(t, map[string]any{"action": "inspect", "job_id": "running_job"}))
	text := scheduleText(t, content, err)
	for _, want := range []string{
		"Job 'running_job' is currently running:",
		"- Session ID: running_session",
		"- Started: " + started.Format(time.RFC3339),
		"- Duration: ",
		" seconds",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("inspect text %q missing %q", text, want)
		}
	}

	idleContent, idleErr := a.handleScheduleManagement(ctx,
		scheduleArgs(t, map[string]any{"action": "inspect", "job_id": "idle_job"}))
	idle := scheduleText(t, idleContent, idleErr)
	if idle != "Job 'idle_job' is not currently running" {
		t.Errorf("idle text = %q", idle)
	}
}

func TestScheduleToolSessions(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())
	ctx := context.Background()

	content, err := a.handleScheduleManagement(ctx,
		scheduleArgs(t, map[string]any{"action": "sessions", "job_id": "job1"}))
	text := scheduleText(t, content, err)
	if !strings.Contains(text, "Sessions for job 'job1':") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "- Session: job1_session1 (Messages: 4, Working Dir: /tmp)") {
		t.Errorf("text = %q", text)
	}

	emptyContent, emptyErr := a.handleScheduleManagement(ctx,
		scheduleArgs(t, map[string]any{"action": "sessions", "job_id": "empty_job"}))
	empty := scheduleText(t, emptyContent, emptyErr)
	if empty != "No sessions found for job 'empty_job'" {
		t.Errorf("empty text = %q", empty)
	}
}

func TestScheduleToolDispatch(t *testing.T) {
	a := New()
	a.SetScheduler(newMockScheduler())

	requestID, result, err := a.dispatchToolCall(context.Background(), models.ToolCall{
		Name:      PlatformManageScheduleToolName,
		Arguments: scheduleArgs(t, map[string]any{"action": "list"}),
	}, "test_dispatch")
	if err != nil {
		t.Fatal(err)
	}
	if requestID != "test_dispatch" {
		t.Errorf("request id = %q", requestID)
	}

	outcome := <-result.Result
	if outcome.Err != nil {
		t.Fatal(outcome.Err)
	}
	if !strings.HasPrefix(models.ConcatText(outcome.Content), "Scheduled Jobs:") {
		t.Errorf("content = %q", models.ConcatText(outcome.Content))
	}
}

func TestScheduleToolInListTools(t *testing.T) {
	a := New()
	tools := a.ListTools("")

	var found *models.Tool
	for i := range tools {
		if tools[i].Name == PlatformManageScheduleToolName {
			found = &tools[i]
			break
		}
	}
	if found == nil {
		t.Fatal("manage_schedule tool missing from list")
	}
	if !strings.Contains(found.Description, "Manage scheduled recipe execution") {
		t.Errorf("description = %q", found.Description)
	}
}
