package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tlongwell-block/goose/internal/extensions"
	"github.com/tlongwell-block/goose/pkg/models"
)

func dispatchOutcome(t *testing.T, a *Agent, call models.ToolCall) models.ToolOutcome {
	t.Helper()
	_, result, err := a.dispatchToolCall(context.Background(), call, "req")
	if err != nil {
		return models.ToolOutcome{Err: err}
	}
	return <-result.Result
}

func TestDispatchFrontendSentinel(t *testing.T) {
	a := New()
	err := a.AddExtension(context.Background(), extensions.ExtensionConfig{
		Name:  "frontend",
		Type:  extensions.TypeFrontend,
		Tools: []models.Tool{{Name: "pick_file"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := dispatchOutcome(t, a, models.ToolCall{Name: "pick_file"})
	if outcome.Err == nil || outcome.Err.Error() != frontendRequiredError {
		t.Errorf("outcome err = %v", outcome.Err)
	}
}

func TestDispatchVectorSearchWithoutSelector(t *testing.T) {
	a := New()
	outcome := dispatchOutcome(t, a, models.ToolCall{
		Name:      RouterVectorSearchToolName,
		Arguments: json.RawMessage(`{"query":"anything"}`),
	})
	if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), "Encountered vector search error.") {
		t.Errorf("outcome err = %v", outcome.Err)
	}
}

func TestDispatchUnknownExtensionTool(t *testing.T) {
	a := New()
	outcome := dispatchOutcome(t, a, models.ToolCall{Name: "ghost__tool"})
	if outcome.Err == nil {
		t.Error("expected an error for an unknown extension tool")
	}
	if _, ok := outcome.Err.(*models.ExecutionError); !ok {
		t.Errorf("expected ExecutionError, got %T", outcome.Err)
	}
}

func TestManageExtensionsUnknownName(t *testing.T) {
	a := New()
	_, err := a.manageExtensions(context.Background(),
		json.RawMessage(`{"action":"enable","extension_name":"ghost"}`))
	if err == nil || !strings.Contains(err.Error(),
		"Extension 'ghost' not found. Please check the extension name and try again.") {
		t.Errorf("err = %v", err)
	}
}

func TestManageExtensionsUnknownAction(t *testing.T) {
	a := New()
	_, err := a.manageExtensions(context.Background(),
		json.RawMessage(`{"action":"detonate","extension_name":"web"}`))
	if err == nil || !strings.Contains(err.Error(), "Unknown action: detonate") {
		t.Errorf("err = %v", err)
	}
}

func TestLargeResponseTruncation(t *testing.T) {
	a := New()
	a.largeResponseThreshold = 100

	big := strings.Repeat("x", 500)
	outcome := a.processToolResponse(models.ToolOutcome{
		Content: []models.Content{models.NewTextContent(big)},
	})

	text := models.ConcatText(outcome.Content)
	if !strings.Contains(text, "has been truncated") {
		t.Fatalf("expected truncation notice, got %q", text[:80])
	}
	if !strings.Contains(text, "goose://tool-output/") {
		t.Error("truncation notice missing the resource handle")
	}

	// The full output is retrievable through read_resource.
	start := strings.Index(text, "goose://tool-output/")
	end := start
	for end < len(text) && text[end] != ';' && text[end] != ' ' {
		end++
	}
	uri := text[start:end]

	args, _ := json.Marshal(map[string]string{"uri": uri})
	content, err := a.extensionMgr().ReadResource(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if models.ConcatText(content) != big {
		t.Error("saved resource does not round-trip the full output")
	}

	// Small outputs pass through untouched.
	small := a.processToolResponse(models.ToolOutcome{
		Content: []models.Content{models.NewTextContent("tiny")},
	})
	if models.ConcatText(small.Content) != "tiny" {
		t.Errorf("small output modified: %q", models.ConcatText(small.Content))
	}
}
