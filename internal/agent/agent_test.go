package agent

import (
	"testing"

	"github.com/tlongwell-block/goose/pkg/models"
)

func toolNames(tools []models.Tool) map[string]bool {
	names := make(map[string]bool, len(tools))
	for _, t := range tools {
		names[t.Name] = true
	}
	return names
}

func TestListToolsIncludesPlatformTools(t *testing.T) {
	a := New()
	names := toolNames(a.ListTools(""))

	for _, want := range []string{
		PlatformSearchExtensionsToolName,
		PlatformManageExtensionsToolName,
		PlatformManageScheduleToolName,
	} {
		if !names[want] {
			t.Errorf("missing platform tool %s", want)
		}
	}

	// No extension advertises resources yet.
	if names[PlatformReadResourceToolName] || names[PlatformListResourcesToolName] {
		t.Error("resource tools listed without resource support")
	}
}

func TestListToolsPlatformFilter(t *testing.T) {
	a := New()
	names := toolNames(a.ListTools("platform"))
	if !names[PlatformManageScheduleToolName] {
		t.Error("platform filter dropped platform tools")
	}

	other := a.ListTools("some-extension")
	if len(other) != 0 {
		t.Errorf("unexpected tools for unknown extension: %d", len(other))
	}
}

func TestCategorizeToolsByAnnotation(t *testing.T) {
	tools := []models.Tool{
		{Name: "ro", Annotations: &models.ToolAnnotations{ReadOnlyHint: true}},
		{Name: "rw", Annotations: &models.ToolAnnotations{}},
		{Name: "bare"},
	}

	readonly, unannotated := categorizeToolsByAnnotation(tools)
	if !readonly["ro"] || readonly["rw"] || readonly["bare"] {
		t.Errorf("readonly = %v", readonly)
	}
	if !unannotated["bare"] || unannotated["ro"] || unannotated["rw"] {
		t.Errorf("unannotated = %v", unannotated)
	}
}

func TestToolStatsWithoutMonitor(t *testing.T) {
	a := New()
	if stats := a.GetToolStats(); stats != nil {
		t.Errorf("stats without monitor = %v", stats)
	}

	max := 2
	a.ConfigureToolMonitor(&max)
	if stats := a.GetToolStats(); stats == nil {
		t.Error("stats nil with monitor configured")
	}
	a.ResetToolMonitor()
}
