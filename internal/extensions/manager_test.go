package extensions

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tlongwell-block/goose/pkg/models"
)

// fakeClient satisfies the client seam without a subprocess.
type fakeClient struct {
	tools        []models.Tool
	instructions string
	resources    bool
	notifs       chan models.JSONRPCMessage

	callTool func(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error)
}

func newFakeClient(tools ...models.Tool) *fakeClient {
	return &fakeClient{
		tools:  tools,
		notifs: make(chan models.JSONRPCMessage, 8),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                      { return nil }
func (f *fakeClient) Instructions() string              { return f.instructions }
func (f *fakeClient) Tools() []models.Tool              { return f.tools }
func (f *fakeClient) SupportsResources() bool           { return f.resources }

func (f *fakeClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	if f.callTool != nil {
		return f.callTool(ctx, name, arguments)
	}
	return &CallToolResult{Content: []models.Content{models.NewTextContent("ran " + name)}}, nil
}

func (f *fakeClient) ListResources(ctx context.Context) ([]Resource, error) { return nil, nil }
func (f *fakeClient) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	return nil, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]Prompt, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	return nil, nil
}
func (f *fakeClient) Notifications() <-chan models.JSONRPCMessage { return f.notifs }

// addFakeClient registers a fake as a running extension.
func addFakeClient(m *Manager, name string, fake *fakeClient) {
	m.mu.Lock()
	m.clients[name] = fake
	m.configs[name] = ExtensionConfig{Name: name, Type: TypeStdio, Command: "fake"}
	m.mu.Unlock()
}

func TestGetPrefixedTools(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)
	addFakeClient(m, "files", newFakeClient(
		models.Tool{Name: "read"},
		models.Tool{Name: "write"},
	))
	addFakeClient(m, "web", newFakeClient(models.Tool{Name: "fetch"}))

	tools, err := m.GetPrefixedTools("")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	want := []string{"files__read", "files__write", "web__fetch"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}

	only, err := m.GetPrefixedTools("web")
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Name != "web__fetch" {
		t.Errorf("filtered tools = %v", only)
	}
}

func TestDispatchToolCallRoutesByPrefix(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)
	fake := newFakeClient(models.Tool{Name: "fetch"})
	addFakeClient(m, "web", fake)

	result, err := m.DispatchToolCall(context.Background(), models.ToolCall{
		Name:      "web__fetch",
		Arguments: json.RawMessage(`{"url":"https://example.com"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome := waitOutcome(t, result)
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if got := models.ConcatText(outcome.Content); got != "ran fetch" {
		t.Errorf("content = %q", got)
	}
}

func TestDispatchToolCallUnknownExtension(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)

	if _, err := m.DispatchToolCall(context.Background(), models.ToolCall{Name: "nope__tool"}); err == nil {
		t.Error("expected an error for unknown extension")
	}
	if _, err := m.DispatchToolCall(context.Background(), models.ToolCall{Name: "unprefixed"}); err == nil {
		t.Error("expected an error for unprefixed tool name")
	}
}

func TestDispatchToolCallErrorResultBecomesExecutionError(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)
	fake := newFakeClient(models.Tool{Name: "boom"})
	fake.callTool = func(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
		return &CallToolResult{
			Content: []models.Content{models.NewTextContent("it broke")},
			IsError: true,
		}, nil
	}
	addFakeClient(m, "ext", fake)

	result, err := m.DispatchToolCall(context.Background(), models.ToolCall{Name: "ext__boom"})
	if err != nil {
		t.Fatal(err)
	}

	outcome := waitOutcome(t, result)
	if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), "it broke") {
		t.Errorf("outcome error = %v", outcome.Err)
	}
}

func TestDispatchCapturesNotifications(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)
	fake := newFakeClient(models.Tool{Name: "slow"})

	started := make(chan struct{})
	fake.callTool = func(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
		close(started)
		// Give the forwarder a moment to pick up the notification.
		time.Sleep(20 * time.Millisecond)
		return &CallToolResult{Content: []models.Content{models.NewTextContent("done")}}, nil
	}
	addFakeClient(m, "ext", fake)

	fake.notifs <- models.NewNotification("notifications/progress", map[string]int{"pct": 50})

	result, err := m.DispatchToolCall(context.Background(), models.ToolCall{Name: "ext__slow"})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	var sawNotification bool
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-result.Notifications:
			if !ok {
				if !sawNotification {
					t.Fatal("stream closed without the notification")
				}
				waitOutcome(t, result)
				return
			}
			if msg.Method == "notifications/progress" {
				sawNotification = true
			}
		case <-timeout:
			t.Fatal("timed out waiting on notification stream")
		}
	}
}

func TestSearchAvailableExtensionsListsDisabled(t *testing.T) {
	registry := NewConfigManager()
	registry.Set(RegistryEntry{Config: ExtensionConfig{Name: "files", Type: TypeStdio, Command: "x", Description: "file tools"}})
	registry.Set(RegistryEntry{Config: ExtensionConfig{Name: "web", Type: TypeStdio, Command: "x"}})

	m := NewManager(registry, nil)
	addFakeClient(m, "web", newFakeClient())

	content, err := m.SearchAvailableExtensions()
	if err != nil {
		t.Fatal(err)
	}
	text := models.ConcatText(content)
	if !strings.Contains(text, "files: file tools") {
		t.Errorf("missing disabled extension in %q", text)
	}
	if strings.Contains(text, "web") {
		t.Errorf("enabled extension listed in %q", text)
	}
}

func TestSavedResourcesRoundTrip(t *testing.T) {
	m := NewManager(NewConfigManager(), nil)
	m.SaveResource("goose://tool-output/abc", "the full output")

	content, err := m.ReadResource(context.Background(), json.RawMessage(`{"uri":"goose://tool-output/abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := models.ConcatText(content); got != "the full output" {
		t.Errorf("content = %q", got)
	}

	listing, err := m.ListResources(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(models.ConcatText(listing), "goose://tool-output/abc") {
		t.Errorf("saved resource missing from listing: %s", models.ConcatText(listing))
	}
}

func waitOutcome(t *testing.T, result models.ToolCallResult) models.ToolOutcome {
	t.Helper()
	select {
	case outcome := <-result.Result:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool outcome")
		return models.ToolOutcome{}
	}
}
