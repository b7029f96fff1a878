package agent

// dispatchKind is the routing decision for one tool call.
type dispatchKind string

const (
	dispatchExtensionTool            dispatchKind = "extension"
	dispatchPlatformManageExtensions dispatchKind = "platform_manage_extensions"
	dispatchPlatformSchedule         dispatchKind = "platform_schedule"
	dispatchPlatformReadResource     dispatchKind = "platform_read_resource"
	dispatchPlatformListResources    dispatchKind = "platform_list_resources"
	dispatchPlatformSearchExtensions dispatchKind = "platform_search_extensions"
	dispatchFrontend                 dispatchKind = "frontend"
	dispatchRouterVectorSearch       dispatchKind = "router_vector_search"
)

// classifyTool maps a tool name to its dispatch kind: exact match on the
// well-known platform names, then frontend membership, then the
// extension-backed default. Unknown names fall through to the extension
// manager, which reports not-found.
func classifyTool(name string, isFrontend func(string) bool) dispatchKind {
	switch name {
	case PlatformManageExtensionsToolName:
		return dispatchPlatformManageExtensions
	case PlatformManageScheduleToolName:
		return dispatchPlatformSchedule
	case PlatformReadResourceToolName:
		return dispatchPlatformReadResource
	case PlatformListResourcesToolName:
		return dispatchPlatformListResources
	case PlatformSearchExtensionsToolName:
		return dispatchPlatformSearchExtensions
	case RouterVectorSearchToolName:
		return dispatchRouterVectorSearch
	}
	if isFrontend != nil && isFrontend(name) {
		return dispatchFrontend
	}
	return dispatchExtensionTool
}
