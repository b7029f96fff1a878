package extensions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/tlongwell-block/goose/pkg/models"
)

// toolPrefixSeparator joins an extension name with a tool name in the
// provider-visible tool list.
const toolPrefixSeparator = "__"

// SetupError is returned when an extension fails to start or initialize.
type SetupError struct {
	Name  string
	Cause error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to set up extension %s: %v", e.Name, e.Cause)
}

func (e *SetupError) Unwrap() error { return e.Cause }

// ExtensionInfo summarizes one running extension for prompt building.
type ExtensionInfo struct {
	Name         string
	Instructions string
	HasResources bool
}

// Manager owns the running extensions and routes tool calls, resource
// reads, and prompt requests to them. It also keeps an in-memory resource
// space where oversized tool outputs are parked for later retrieval.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]client
	configs map[string]ExtensionConfig

	// Registry of known-but-not-necessarily-enabled extensions.
	registry *ConfigManager

	// Saved large tool outputs, keyed by uri.
	savedMu sync.RWMutex
	saved   map[string]string

	logger *slog.Logger

	// newClient is swapped in tests.
	newClient func(cfg ExtensionConfig, logger *slog.Logger) client
}

// NewManager creates an empty extension manager.
func NewManager(registry *ConfigManager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewConfigManager()
	}
	return &Manager{
		clients:  make(map[string]client),
		configs:  make(map[string]ExtensionConfig),
		registry: registry,
		saved:    make(map[string]string),
		logger:   logger.With("component", "extensions"),
		newClient: func(cfg ExtensionConfig, logger *slog.Logger) client {
			return newStdioClient(cfg, logger)
		},
	}
}

// Registry returns the extension registry.
func (m *Manager) Registry() *ConfigManager { return m.registry }

// AddExtension starts the extension described by config and caches its
// tool list. Frontend configs are rejected; they never reach the manager.
func (m *Manager) AddExtension(ctx context.Context, config ExtensionConfig) error {
	if err := config.Validate(); err != nil {
		return &SetupError{Name: config.Name, Cause: err}
	}
	if config.Type == TypeFrontend {
		return &SetupError{Name: config.Name, Cause: fmt.Errorf("frontend extensions are not managed in-process")}
	}

	m.mu.Lock()
	if _, exists := m.clients[config.Name]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	cl := m.newClient(config, m.logger)
	if err := cl.Connect(ctx); err != nil {
		return &SetupError{Name: config.Name, Cause: err}
	}

	m.mu.Lock()
	m.clients[config.Name] = cl
	m.configs[config.Name] = config
	m.mu.Unlock()
	return nil
}

// RemoveExtension stops the named extension.
func (m *Manager) RemoveExtension(name string) error {
	m.mu.Lock()
	cl, ok := m.clients[name]
	delete(m.clients, name)
	delete(m.configs, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("extension %q is not enabled", name)
	}
	if err := cl.Close(); err != nil {
		m.logger.Warn("failed to close extension", "extension", name, "error", err)
	}
	return nil
}

// ListExtensions returns the names of running extensions, sorted.
func (m *Manager) ListExtensions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPrefixedTools returns tools from all running extensions (or just the
// named one) with their names prefixed "<extension>__<tool>".
func (m *Manager) GetPrefixedTools(extensionName string) ([]models.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tools []models.Tool
	for name, cl := range m.clients {
		if extensionName != "" && name != extensionName {
			continue
		}
		for _, tool := range cl.Tools() {
			prefixed := tool
			prefixed.Name = name + toolPrefixSeparator + tool.Name
			tools = append(tools, prefixed)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// SupportsResources reports whether any running extension advertises
// resources.
func (m *Manager) SupportsResources() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cl := range m.clients {
		if cl.SupportsResources() {
			return true
		}
	}
	return false
}

// DispatchToolCall routes a prefixed tool call to its extension and
// returns the notification stream plus completion future. Notifications
// emitted by the extension while the call runs are captured on the stream;
// they are not request-scoped.
func (m *Manager) DispatchToolCall(ctx context.Context, call models.ToolCall) (models.ToolCallResult, error) {
	extName, toolName, ok := strings.Cut(call.Name, toolPrefixSeparator)
	if !ok {
		return models.ToolCallResult{}, fmt.Errorf("unknown tool: %s", call.Name)
	}

	m.mu.RLock()
	cl, exists := m.clients[extName]
	m.mu.RUnlock()
	if !exists {
		return models.ToolCallResult{}, fmt.Errorf("extension %q is not enabled", extName)
	}

	notifs := make(chan models.JSONRPCMessage, 32)
	done := make(chan models.ToolOutcome, 1)

	callDone := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		defer close(notifs)
		for {
			select {
			case msg, ok := <-cl.Notifications():
				if !ok {
					<-callDone
					return
				}
				select {
				case notifs <- msg:
				default:
					m.logger.Warn("tool notification dropped", "tool", call.Name)
				}
			case <-callDone:
				// Flush notifications that raced with completion.
				for {
					select {
					case msg, ok := <-cl.Notifications():
						if !ok {
							return
						}
						select {
						case notifs <- msg:
						default:
							m.logger.Warn("tool notification dropped", "tool", call.Name)
						}
					default:
						return
					}
				}
			}
		}
	}()

	go func() {
		result, err := cl.CallTool(ctx, toolName, call.Arguments)
		// Close the notification stream before resolving the outcome.
		close(callDone)
		<-forwarded
		if err != nil {
			done <- models.ToolOutcome{Err: models.NewExecutionError(err.Error())}
		} else if result.IsError {
			done <- models.ToolOutcome{Err: models.NewExecutionError(models.ConcatText(result.Content))}
		} else {
			done <- models.ToolOutcome{Content: result.Content}
		}
		close(done)
	}()

	return models.ToolCallResult{Notifications: notifs, Result: done}, nil
}

// ReadResource reads a resource by uri. The saved-output space is always
// checked first; after that, when extension_name is given only that
// extension is consulted, otherwise all extensions are searched.
func (m *Manager) ReadResource(ctx context.Context, args json.RawMessage) ([]models.Content, error) {
	var params struct {
		URI           string `json:"uri"`
		ExtensionName string `json:"extension_name"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.URI == "" {
		return nil, models.NewExecutionError("Missing 'uri' parameter")
	}

	if text, ok := m.savedResource(params.URI); ok {
		return []models.Content{models.NewTextContent(text)}, nil
	}

	m.mu.RLock()
	clients := make(map[string]client, len(m.clients))
	for name, cl := range m.clients {
		if params.ExtensionName != "" && name != params.ExtensionName {
			continue
		}
		clients[name] = cl
	}
	m.mu.RUnlock()

	for name, cl := range clients {
		contents, err := cl.ReadResource(ctx, params.URI)
		if err != nil {
			m.logger.Debug("resource not found in extension", "extension", name, "uri", params.URI)
			continue
		}
		var out []models.Content
		for _, rc := range contents {
			if rc.Text != "" {
				out = append(out, models.NewTextContent(rc.Text))
			} else if rc.Blob != "" {
				out = append(out, models.NewImageContent(rc.Blob, rc.MimeType))
			}
		}
		return out, nil
	}

	return nil, models.ExecutionErrorf("resource %q not found", params.URI)
}

// ListResources lists resources from one or all extensions, including the
// saved-output space.
func (m *Manager) ListResources(ctx context.Context, args json.RawMessage) ([]models.Content, error) {
	var params struct {
		ExtensionName string `json:"extension_name"`
	}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &params)
	}

	type entry struct {
		Extension string `json:"extension"`
		URI       string `json:"uri"`
		Name      string `json:"name,omitempty"`
	}
	entries := []entry{}

	m.savedMu.RLock()
	for uri := range m.saved {
		entries = append(entries, entry{Extension: "platform", URI: uri})
	}
	m.savedMu.RUnlock()

	m.mu.RLock()
	clients := make(map[string]client, len(m.clients))
	for name, cl := range m.clients {
		if params.ExtensionName != "" && name != params.ExtensionName {
			continue
		}
		clients[name] = cl
	}
	m.mu.RUnlock()

	for name, cl := range clients {
		resources, err := cl.ListResources(ctx)
		if err != nil {
			continue
		}
		for _, r := range resources {
			entries = append(entries, entry{Extension: name, URI: r.URI, Name: r.Name})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].URI < entries[j].URI })
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, models.ExecutionErrorf("failed to serialize resources: %v", err)
	}
	return []models.Content{models.NewTextContent(string(out))}, nil
}

// SearchAvailableExtensions lists registry extensions that are not
// currently enabled, so the model can discover what it may turn on.
func (m *Manager) SearchAvailableExtensions() ([]models.Content, error) {
	m.mu.RLock()
	enabled := make(map[string]bool, len(m.clients))
	for name := range m.clients {
		enabled[name] = true
	}
	m.mu.RUnlock()

	var lines []string
	for _, entry := range m.registry.All() {
		if enabled[entry.Config.Name] {
			continue
		}
		desc := entry.Config.Description
		if desc == "" {
			desc = "no description"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", entry.Config.Name, desc))
	}
	sort.Strings(lines)

	if len(lines) == 0 {
		return []models.Content{models.NewTextContent("No additional extensions are available.")}, nil
	}
	return []models.Content{models.NewTextContent("Available extensions:\n" + strings.Join(lines, "\n"))}, nil
}

// ListPrompts returns prompt templates per extension.
func (m *Manager) ListPrompts(ctx context.Context) (map[string][]Prompt, error) {
	m.mu.RLock()
	clients := make(map[string]client, len(m.clients))
	for name, cl := range m.clients {
		clients[name] = cl
	}
	m.mu.RUnlock()

	out := make(map[string][]Prompt)
	for name, cl := range clients {
		prompts, err := cl.ListPrompts(ctx)
		if err != nil {
			continue
		}
		if len(prompts) > 0 {
			out[name] = prompts
		}
	}
	return out, nil
}

// GetPrompt renders a prompt template from the named extension.
func (m *Manager) GetPrompt(ctx context.Context, extensionName, name string, arguments map[string]string) (*GetPromptResult, error) {
	m.mu.RLock()
	cl, ok := m.clients[extensionName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("extension %q is not enabled", extensionName)
	}
	return cl.GetPrompt(ctx, name, arguments)
}

// ExtensionsInfo summarizes running extensions for prompt building.
func (m *Manager) ExtensionsInfo() []ExtensionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ExtensionInfo, 0, len(m.clients))
	for name, cl := range m.clients {
		infos = append(infos, ExtensionInfo{
			Name:         name,
			Instructions: cl.Instructions(),
			HasResources: cl.SupportsResources(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// SaveResource parks text content under a uri retrievable via ReadResource
// and visible in ListResources. Used for oversized tool outputs.
func (m *Manager) SaveResource(uri, text string) {
	m.savedMu.Lock()
	m.saved[uri] = text
	m.savedMu.Unlock()
}

func (m *Manager) savedResource(uri string) (string, bool) {
	m.savedMu.RLock()
	defer m.savedMu.RUnlock()
	text, ok := m.saved[uri]
	return text, ok
}
