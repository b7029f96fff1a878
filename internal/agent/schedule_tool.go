package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tlongwell-block/goose/internal/scheduler"
	"github.com/tlongwell-block/goose/pkg/models"
)

const schedulerUnavailableError = "Scheduler not available. This tool only works in server mode."

var (
	scheduleSchemaOnce sync.Once
	scheduleSchema     *jsonschema.Schema
)

// scheduleArgsSchema compiles the manage_schedule argument schema once.
func scheduleArgsSchema() *jsonschema.Schema {
	scheduleSchemaOnce.Do(func() {
		raw := reflectSchema(&manageScheduleArgs{})
		schema, err := jsonschema.CompileString("manage_schedule.json", string(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid manage_schedule schema: %v", err))
		}
		scheduleSchema = schema
	})
	return scheduleSchema
}

// handleScheduleManagement implements platform__manage_schedule, the
// CRUD-and-control surface over the external scheduler.
func (a *Agent) handleScheduleManagement(ctx context.Context, arguments json.RawMessage) ([]models.Content, error) {
	sched := a.currentScheduler()
	if sched == nil {
		return nil, models.NewExecutionError(schedulerUnavailableError)
	}

	var parsed map[string]any
	if err := json.Unmarshal(arguments, &parsed); err != nil {
		return nil, models.NewExecutionError("Invalid arguments for schedule management")
	}

	action, _ := parsed["action"].(string)
	if action == "" {
		return nil, models.NewExecutionError("Missing 'action' parameter")
	}

	// Type-check the remaining arguments; presence of per-action required
	// parameters is reported with the exact missing-parameter wording
	// below.
	if err := scheduleArgsSchema().Validate(parsed); err != nil {
		return nil, models.ExecutionErrorf("Invalid arguments: %v", err)
	}

	switch action {
	case "list":
		return a.handleListJobs(ctx, sched)
	case "create":
		return a.handleCreateJob(ctx, sched, parsed)
	case "run_now":
		return a.handleRunNow(ctx, sched, parsed)
	case "pause":
		return a.handlePauseJob(ctx, sched, parsed)
	case "unpause":
		return a.handleUnpauseJob(ctx, sched, parsed)
	case "delete":
		return a.handleDeleteJob(ctx, sched, parsed)
	case "kill":
		return a.handleKillJob(ctx, sched, parsed)
	case "inspect":
		return a.handleInspectJob(ctx, sched, parsed)
	case "sessions":
		return a.handleListSessions(ctx, sched, parsed)
	default:
		return nil, models.ExecutionErrorf("Unknown action: %s", action)
	}
}

func requireStringArg(parsed map[string]any, name string) (string, error) {
	value, _ := parsed[name].(string)
	if value == "" {
		return "", models.ExecutionErrorf("Missing '%s' parameter", name)
	}
	return value, nil
}

func (a *Agent) handleListJobs(ctx context.Context, sched scheduler.Scheduler) ([]models.Content, error) {
	jobs, err := sched.ListScheduledJobs(ctx)
	if err != nil {
		return nil, models.ExecutionErrorf("Failed to list jobs: %v", err)
	}
	if jobs == nil {
		jobs = []scheduler.ScheduledJob{}
	}
	jobsJSON, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return nil, models.ExecutionErrorf("Failed to serialize jobs: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf("Scheduled Jobs:\n%s", jobsJSON))}, nil
}

func (a *Agent) handleCreateJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	recipePath, err := requireStringArg(parsed, "recipe_path")
	if err != nil {
		return nil, err
	}
	cronExpression, err := requireStringArg(parsed, "cron_expression")
	if err != nil {
		return nil, err
	}

	// Validate the recipe before registering anything.
	if _, err := scheduler.LoadRecipe(recipePath); err != nil {
		return nil, models.NewExecutionError(err.Error())
	}

	jobID := fmt.Sprintf("agent_created_%d", time.Now().Unix())
	job := scheduler.ScheduledJob{
		ID:     jobID,
		Source: recipePath,
		Cron:   cronExpression,
	}

	if err := sched.AddScheduledJob(ctx, job); err != nil {
		return nil, models.ExecutionErrorf("Failed to create job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf(
		"Successfully created scheduled job '%s' for recipe '%s' with cron expression '%s'",
		jobID, recipePath, cronExpression,
	))}, nil
}

func (a *Agent) handleRunNow(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	sessionID, err := sched.RunNow(ctx, jobID)
	if err != nil {
		return nil, models.ExecutionErrorf("Failed to run job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf(
		"Successfully started job '%s'. Session ID: %s", jobID, sessionID,
	))}, nil
}

func (a *Agent) handlePauseJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	if err := sched.PauseSchedule(ctx, jobID); err != nil {
		return nil, models.ExecutionErrorf("Failed to pause job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf("Successfully paused job '%s'", jobID))}, nil
}

func (a *Agent) handleUnpauseJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	if err := sched.UnpauseSchedule(ctx, jobID); err != nil {
		return nil, models.ExecutionErrorf("Failed to unpause job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf("Successfully unpaused job '%s'", jobID))}, nil
}

func (a *Agent) handleDeleteJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	if err := sched.RemoveScheduledJob(ctx, jobID); err != nil {
		return nil, models.ExecutionErrorf("Failed to delete job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf("Successfully deleted job '%s'", jobID))}, nil
}

func (a *Agent) handleKillJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	if err := sched.KillRunningJob(ctx, jobID); err != nil {
		return nil, models.ExecutionErrorf("Failed to kill job: %v", err)
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf("Successfully killed running job '%s'", jobID))}, nil
}

func (a *Agent) handleInspectJob(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	info, err := sched.GetRunningJobInfo(ctx, jobID)
	if err != nil {
		return nil, models.ExecutionErrorf("Failed to inspect job: %v", err)
	}
	if info == nil {
		return []models.Content{models.NewTextContent(fmt.Sprintf("Job '%s' is not currently running", jobID))}, nil
	}

	duration := time.Since(info.StartedAt)
	return []models.Content{models.NewTextContent(fmt.Sprintf(
		"Job '%s' is currently running:\n- Session ID: %s\n- Started: %s\n- Duration: %d seconds",
		jobID, info.SessionID, info.StartedAt.Format(time.RFC3339), int64(duration.Seconds()),
	))}, nil
}

func (a *Agent) handleListSessions(ctx context.Context, sched scheduler.Scheduler, parsed map[string]any) ([]models.Content, error) {
	jobID, err := requireStringArg(parsed, "job_id")
	if err != nil {
		return nil, err
	}
	limit := 50
	if v, ok := parsed["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	summaries, err := sched.Sessions(ctx, jobID, limit)
	if err != nil {
		return nil, models.ExecutionErrorf("Failed to list sessions: %v", err)
	}
	if len(summaries) == 0 {
		return []models.Content{models.NewTextContent(fmt.Sprintf("No sessions found for job '%s'", jobID))}, nil
	}

	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf("- Session: %s (Messages: %d, Working Dir: %s)",
			s.Name, s.MessageCount, s.WorkingDir))
	}
	return []models.Content{models.NewTextContent(fmt.Sprintf(
		"Sessions for job '%s':\n%s", jobID, strings.Join(lines, "\n"),
	))}, nil
}
