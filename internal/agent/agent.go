// Package agent implements the goose agent core: the reply loop that
// mediates a multi-turn conversation between an LLM provider and a
// pluggable set of tool extensions, the tool dispatch router, the
// permission gate, and the scheduled-job control surface.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tlongwell-block/goose/internal/config"
	"github.com/tlongwell-block/goose/internal/extensions"
	"github.com/tlongwell-block/goose/internal/permissions"
	"github.com/tlongwell-block/goose/internal/providers"
	"github.com/tlongwell-block/goose/internal/router"
	"github.com/tlongwell-block/goose/internal/scheduler"
	"github.com/tlongwell-block/goose/internal/sessions"
	"github.com/tlongwell-block/goose/pkg/models"
)

// ErrNoProvider is returned when a reply is requested before a provider is
// configured.
var ErrNoProvider = errors.New("provider not set")

// Agent orchestrates one conversation with a provider and its tools.
//
// Every mutable field sits behind its own mutex. When more than one lock
// is needed they are acquired in the order [provider, extensionManager,
// routerSelector, frontendTools, promptManager, toolMonitor,
// schedulerService] and released before any channel operation.
type Agent struct {
	logger *slog.Logger

	providerMu sync.Mutex
	provider   providers.Provider

	extensionsMu     sync.Mutex
	extensionManager *extensions.Manager

	selectorMu sync.Mutex
	selector   router.Selector

	frontendMu           sync.Mutex
	frontendTools        map[string]FrontendTool
	frontendInstructions string

	promptMu      sync.Mutex
	promptManager *PromptManager

	monitorMu   sync.Mutex
	toolMonitor *ToolMonitor

	schedulerMu      sync.Mutex
	schedulerService scheduler.Scheduler

	permissionManager permissions.Manager
	sessionStore      sessions.Store

	// largeResponseThreshold bounds tool output size before truncation.
	largeResponseThreshold int

	confirmations   chan confirmationEnvelope
	confirmationsRx sync.Mutex // held by the reply turn while receiving
	toolResults     chan toolResultEnvelope
	toolResultsRx   sync.Mutex
}

// New constructs an agent with empty state.
func New() *Agent {
	return &Agent{
		logger:                 slog.Default().With("component", "agent"),
		extensionManager:       extensions.NewManager(nil, nil),
		frontendTools:          make(map[string]FrontendTool),
		promptManager:          NewPromptManager(),
		permissionManager:      permissions.NewMemoryManager(),
		largeResponseThreshold: defaultLargeResponseThreshold,
		confirmations:          make(chan confirmationEnvelope, channelCapacity),
		toolResults:            make(chan toolResultEnvelope, channelCapacity),
	}
}

// SetLogger replaces the agent logger.
func (a *Agent) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger.With("component", "agent")
	}
}

// SetPermissionManager replaces the permission decision store.
func (a *Agent) SetPermissionManager(pm permissions.Manager) {
	if pm != nil {
		a.permissionManager = pm
	}
}

// SetSessionStore sets the session metadata store used for usage
// accounting.
func (a *Agent) SetSessionStore(store sessions.Store) {
	a.sessionStore = store
}

// SetExtensionRegistry replaces the registry consulted when enabling
// extensions by name.
func (a *Agent) SetExtensionRegistry(registry *extensions.ConfigManager) {
	a.extensionsMu.Lock()
	defer a.extensionsMu.Unlock()
	a.extensionManager = extensions.NewManager(registry, a.logger)
}

// UpdateProvider sets or replaces the provider. When
// GOOSE_ROUTER_TOOL_SELECTION_STRATEGY is "vector" and the provider can
// embed, the router tool selector is (re)initialized and the platform
// tools indexed.
func (a *Agent) UpdateProvider(ctx context.Context, provider providers.Provider) error {
	a.providerMu.Lock()
	a.provider = provider
	a.providerMu.Unlock()

	return a.updateRouterToolSelector(ctx, provider)
}

func (a *Agent) updateRouterToolSelector(ctx context.Context, provider providers.Provider) error {
	if router.ParseStrategy(config.RouterStrategy()) != router.StrategyVector {
		return nil
	}

	embedder, ok := provider.(router.Embedder)
	if !ok {
		return fmt.Errorf("provider %s cannot embed; vector tool routing unavailable", provider.Name())
	}

	selector, err := router.NewVectorSelector(embedder)
	if err != nil {
		return fmt.Errorf("failed to create tool selector: %w", err)
	}

	a.selectorMu.Lock()
	a.selector = selector
	a.selectorMu.Unlock()

	if err := router.IndexPlatformTools(ctx, selector, platformTools(true)); err != nil {
		return fmt.Errorf("failed to index platform tools: %w", err)
	}
	return nil
}

// routerSelector returns the current selector, or nil.
func (a *Agent) routerSelector() router.Selector {
	a.selectorMu.Lock()
	defer a.selectorMu.Unlock()
	return a.selector
}

// currentProvider returns the configured provider or ErrNoProvider.
func (a *Agent) currentProvider() (providers.Provider, error) {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()
	if a.provider == nil {
		return nil, ErrNoProvider
	}
	return a.provider, nil
}

// extensionMgr returns the extension manager.
func (a *Agent) extensionMgr() *extensions.Manager {
	a.extensionsMu.Lock()
	defer a.extensionsMu.Unlock()
	return a.extensionManager
}

// IsFrontendTool reports whether name is a frontend tool.
func (a *Agent) IsFrontendTool(name string) bool {
	a.frontendMu.Lock()
	defer a.frontendMu.Unlock()
	_, ok := a.frontendTools[name]
	return ok
}

// AddExtension enables an extension. Frontend configs only populate the
// local frontend tool map and instructions; everything else goes through
// the extension manager. When vector routing is enabled the extension's
// tools are indexed afterwards; an indexing failure surfaces as a
// SetupError but the extension stays enabled.
func (a *Agent) AddExtension(ctx context.Context, cfg extensions.ExtensionConfig) error {
	if cfg.Type == extensions.TypeFrontend {
		a.frontendMu.Lock()
		for _, tool := range cfg.Tools {
			a.frontendTools[tool.Name] = FrontendTool{Name: tool.Name, Tool: tool}
		}
		if cfg.Instructions != "" {
			a.frontendInstructions = cfg.Instructions
		} else {
			a.frontendInstructions = "The following tools are provided directly by the frontend and will be executed by the frontend when called."
		}
		a.frontendMu.Unlock()
	} else {
		if err := a.extensionMgr().AddExtension(ctx, cfg); err != nil {
			return err
		}
	}

	if selector := a.routerSelector(); selector != nil {
		if err := router.UpdateExtensionTools(ctx, selector, a.extensionMgr(), cfg.Name, router.IndexAdd); err != nil {
			return &extensions.SetupError{
				Name:  cfg.Name,
				Cause: fmt.Errorf("failed to index tools: %w", err),
			}
		}
	}
	return nil
}

// RemoveExtension disables an extension and drops its tools from the
// vector index when routing is enabled.
func (a *Agent) RemoveExtension(ctx context.Context, name string) error {
	if err := a.extensionMgr().RemoveExtension(name); err != nil {
		return err
	}

	if selector := a.routerSelector(); selector != nil {
		if err := router.UpdateExtensionTools(ctx, selector, a.extensionMgr(), name, router.IndexRemove); err != nil {
			return fmt.Errorf("failed to update vector index: %w", err)
		}
	}
	return nil
}

// ListExtensions returns the names of enabled extensions.
func (a *Agent) ListExtensions() []string {
	return a.extensionMgr().ListExtensions()
}

// ExtendSystemPrompt appends an instruction to the system prompt.
func (a *Agent) ExtendSystemPrompt(instruction string) {
	a.promptMu.Lock()
	defer a.promptMu.Unlock()
	a.promptManager.AddExtra(instruction)
}

// OverrideSystemPrompt replaces the system prompt template.
func (a *Agent) OverrideSystemPrompt(template string) {
	a.promptMu.Lock()
	defer a.promptMu.Unlock()
	a.promptManager.SetOverride(template)
}

// ListTools returns extension tools plus, when extensionName is "" or
// "platform", the platform tools. Resource tools appear only when some
// extension supports resources.
func (a *Agent) ListTools(extensionName string) []models.Tool {
	mgr := a.extensionMgr()
	var tools []models.Tool
	if extensionName != "platform" {
		var err error
		tools, err = mgr.GetPrefixedTools(extensionName)
		if err != nil {
			a.logger.Warn("failed to list extension tools", "error", err)
		}
	}

	if extensionName == "" || extensionName == "platform" {
		tools = append(tools, platformTools(mgr.SupportsResources())...)
	}
	if extensionName == "" {
		a.frontendMu.Lock()
		for _, ft := range a.frontendTools {
			tools = append(tools, ft.Tool)
		}
		a.frontendMu.Unlock()
	}
	return tools
}

// ListToolsForRouter returns the narrowed tool list used when vector
// routing is active: the vector search tool plus up to 20 recently used
// tools.
func (a *Agent) ListToolsForRouter(strategy router.Strategy) []models.Tool {
	var tools []models.Tool
	if strategy == router.StrategyVector {
		tools = append(tools, vectorSearchTool())
	}

	selector := a.routerSelector()
	if selector == nil {
		return tools
	}

	available := a.ListTools("")
	byName := make(map[string]models.Tool, len(available))
	for _, t := range available {
		byName[t.Name] = t
	}

	for _, name := range selector.RecentToolCalls(20) {
		tool, ok := byName[name]
		if !ok {
			continue
		}
		duplicate := false
		for _, existing := range tools {
			if existing.Name == tool.Name {
				duplicate = true
				break
			}
		}
		if !duplicate {
			tools = append(tools, tool)
		}
	}
	return tools
}

// ConfigureToolMonitor installs a tool monitor. A nil max disables the
// repetition cap while keeping stats.
func (a *Agent) ConfigureToolMonitor(maxRepetitions *int) {
	a.monitorMu.Lock()
	defer a.monitorMu.Unlock()
	a.toolMonitor = NewToolMonitor(maxRepetitions)
}

// GetToolStats returns the monitor's per-tool repeat counters, or nil when
// no monitor is configured.
func (a *Agent) GetToolStats() map[string]int {
	a.monitorMu.Lock()
	defer a.monitorMu.Unlock()
	if a.toolMonitor == nil {
		return nil
	}
	return a.toolMonitor.Stats()
}

// ResetToolMonitor clears the monitor's state.
func (a *Agent) ResetToolMonitor() {
	a.monitorMu.Lock()
	defer a.monitorMu.Unlock()
	if a.toolMonitor != nil {
		a.toolMonitor.Reset()
	}
}

// SetScheduler attaches the scheduler service backing
// platform__manage_schedule.
func (a *Agent) SetScheduler(s scheduler.Scheduler) {
	a.schedulerMu.Lock()
	defer a.schedulerMu.Unlock()
	a.schedulerService = s
}

func (a *Agent) currentScheduler() scheduler.Scheduler {
	a.schedulerMu.Lock()
	defer a.schedulerMu.Unlock()
	return a.schedulerService
}

// HandleConfirmation delivers the caller's answer to a pending tool
// confirmation request. Delivery to an abandoned reply loop is dropped.
func (a *Agent) HandleConfirmation(requestID string, confirmation PermissionConfirmation) {
	select {
	case a.confirmations <- confirmationEnvelope{requestID: requestID, confirmation: confirmation}:
	default:
		a.logger.Error("failed to send confirmation: channel full or no receiver", "request_id", requestID)
	}
}

// HandleToolResult delivers a frontend tool's outcome. Delivery to an
// abandoned reply loop is dropped.
func (a *Agent) HandleToolResult(requestID string, outcome models.ToolOutcome) {
	select {
	case a.toolResults <- toolResultEnvelope{requestID: requestID, outcome: outcome}:
	default:
		a.logger.Error("failed to send tool result: channel full or no receiver", "request_id", requestID)
	}
}

// ListExtensionPrompts returns prompt templates per extension.
func (a *Agent) ListExtensionPrompts(ctx context.Context) map[string][]extensions.Prompt {
	prompts, err := a.extensionMgr().ListPrompts(ctx)
	if err != nil {
		a.logger.Warn("failed to list prompts", "error", err)
		return nil
	}
	return prompts
}

// GetPrompt resolves the extension owning the named prompt and renders it.
func (a *Agent) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*extensions.GetPromptResult, error) {
	mgr := a.extensionMgr()
	prompts, err := mgr.ListPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	for extName, list := range prompts {
		for _, p := range list {
			if p.Name == name {
				return mgr.GetPrompt(ctx, extName, name, arguments)
			}
		}
	}
	return nil, fmt.Errorf("Prompt '%s' not found", name)
}

// GetPlanPrompt builds the planning prompt over the current tool list.
func (a *Agent) GetPlanPrompt(ctx context.Context) (string, error) {
	tools, err := a.extensionMgr().GetPrefixedTools("")
	if err != nil {
		return "", err
	}

	infos := make([]ToolInfo, 0, len(tools))
	for _, tool := range tools {
		infos = append(infos, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaParameterNames(tool.InputSchema),
		})
	}

	a.promptMu.Lock()
	defer a.promptMu.Unlock()
	return a.promptManager.PlanPrompt(infos), nil
}

// schemaParameterNames extracts the top-level property names of a JSON
// schema.
func schemaParameterNames(schema json.RawMessage) []string {
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	return names
}

// prepareToolsAndPrompt assembles the tool list and system prompt for one
// provider turn. With vector routing active the narrowed router list is
// used instead of the full tool list.
func (a *Agent) prepareToolsAndPrompt() ([]models.Tool, string, error) {
	provider, err := a.currentProvider()
	if err != nil {
		return nil, "", err
	}

	var tools []models.Tool
	if a.routerSelector() != nil {
		tools = a.ListToolsForRouter(router.StrategyVector)
	} else {
		tools = a.ListTools("")
	}

	infos := a.extensionMgr().ExtensionsInfo()

	a.frontendMu.Lock()
	frontendInstructions := a.frontendInstructions
	a.frontendMu.Unlock()

	a.promptMu.Lock()
	systemPrompt := a.promptManager.BuildSystemPrompt(infos, frontendInstructions, provider.ModelConfig().ModelName)
	a.promptMu.Unlock()

	return tools, systemPrompt, nil
}

// categorizeToolsByAnnotation splits the tool list into names annotated
// read-only and names carrying no annotations at all.
func categorizeToolsByAnnotation(tools []models.Tool) (readonly map[string]bool, unannotated map[string]bool) {
	readonly = make(map[string]bool)
	unannotated = make(map[string]bool)
	for _, tool := range tools {
		switch {
		case tool.Annotations == nil:
			unannotated[tool.Name] = true
		case tool.Annotations.ReadOnlyHint:
			readonly[tool.Name] = true
		}
	}
	return readonly, unannotated
}
