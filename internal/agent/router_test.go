package agent

import "testing"

func TestClassifyTool(t *testing.T) {
	isFrontend := func(name string) bool { return name == "pick_file" }

	tests := []struct {
		name string
		want dispatchKind
	}{
		{PlatformManageExtensionsToolName, dispatchPlatformManageExtensions},
		{PlatformManageScheduleToolName, dispatchPlatformSchedule},
		{PlatformReadResourceToolName, dispatchPlatformReadResource},
		{PlatformListResourcesToolName, dispatchPlatformListResources},
		{PlatformSearchExtensionsToolName, dispatchPlatformSearchExtensions},
		{RouterVectorSearchToolName, dispatchRouterVectorSearch},
		{"pick_file", dispatchFrontend},
		{"files__read", dispatchExtensionTool},
		{"completely_unknown", dispatchExtensionTool},
	}

	for _, tt := range tests {
		if got := classifyTool(tt.name, isFrontend); got != tt.want {
			t.Errorf("classifyTool(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestClassifyToolNilFrontendCheck(t *testing.T) {
	if got := classifyTool("anything", nil); got != dispatchExtensionTool {
		t.Errorf("classifyTool with nil frontend check = %s", got)
	}
}
