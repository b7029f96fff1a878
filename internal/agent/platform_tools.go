package agent

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/tlongwell-block/goose/pkg/models"
)

// Platform tool names. Extension tools are prefixed
// "<extension>__<tool>"; the platform pseudo-extension hosts the agent's
// built-ins.
const (
	PlatformManageExtensionsToolName = "platform__manage_extensions"
	PlatformManageScheduleToolName   = "platform__manage_schedule"
	PlatformReadResourceToolName     = "platform__read_resource"
	PlatformListResourcesToolName    = "platform__list_resources"
	PlatformSearchExtensionsToolName = "platform__search_available_extensions"
	RouterVectorSearchToolName       = "router__vector_search"
)

type manageExtensionsArgs struct {
	Action        string `json:"action" jsonschema:"required,enum=enable,enum=disable,description=Whether to enable or disable the extension"`
	ExtensionName string `json:"extension_name" jsonschema:"required,description=Name of the extension to manage"`
}

type manageScheduleArgs struct {
	Action         string `json:"action" jsonschema:"required,description=One of list / create / run_now / pause / unpause / delete / kill / inspect / sessions"`
	RecipePath     string `json:"recipe_path,omitempty" jsonschema:"description=Path of the recipe file (create)"`
	CronExpression string `json:"cron_expression,omitempty" jsonschema:"description=Cron expression for the job (create)"`
	JobID          string `json:"job_id,omitempty" jsonschema:"description=Identifier of an existing job"`
	Limit          int    `json:"limit,omitempty" jsonschema:"default=50,description=Maximum number of sessions to list (sessions)"`
}

type readResourceArgs struct {
	URI           string `json:"uri" jsonschema:"required,description=URI of the resource to read"`
	ExtensionName string `json:"extension_name,omitempty" jsonschema:"description=Limit the lookup to one extension"`
}

type listResourcesArgs struct {
	ExtensionName string `json:"extension_name,omitempty" jsonschema:"description=Limit the listing to one extension"`
}

type searchExtensionsArgs struct{}

type vectorSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Natural language description of the needed capability"`
	K     int    `json:"k,omitempty" jsonschema:"description=Number of tools to return"`
}

// reflectSchema builds an inline JSON schema for an argument struct.
func reflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		// Schemas are reflected from static structs; failure is a
		// programming error.
		panic(err)
	}
	return raw
}

func manageExtensionsTool() models.Tool {
	return models.Tool{
		Name:        PlatformManageExtensionsToolName,
		Description: "Enable or disable an extension. Enabling an extension makes its tools available.",
		InputSchema: reflectSchema(&manageExtensionsArgs{}),
	}
}

func manageScheduleTool() models.Tool {
	return models.Tool{
		Name:        PlatformManageScheduleToolName,
		Description: "Manage scheduled recipe execution: list, create, run, pause, inspect, and delete cron jobs.",
		InputSchema: reflectSchema(&manageScheduleArgs{}),
	}
}

func readResourceTool() models.Tool {
	return models.Tool{
		Name:        PlatformReadResourceToolName,
		Description: "Read a resource from an extension by uri.",
		InputSchema: reflectSchema(&readResourceArgs{}),
		Annotations: &models.ToolAnnotations{ReadOnlyHint: true},
	}
}

func listResourcesTool() models.Tool {
	return models.Tool{
		Name:        PlatformListResourcesToolName,
		Description: "List resources available from extensions.",
		InputSchema: reflectSchema(&listResourcesArgs{}),
		Annotations: &models.ToolAnnotations{ReadOnlyHint: true},
	}
}

func searchAvailableExtensionsTool() models.Tool {
	return models.Tool{
		Name:        PlatformSearchExtensionsToolName,
		Description: "List extensions that are available but not currently enabled.",
		InputSchema: reflectSchema(&searchExtensionsArgs{}),
		Annotations: &models.ToolAnnotations{ReadOnlyHint: true},
	}
}

func vectorSearchTool() models.Tool {
	return models.Tool{
		Name:        RouterVectorSearchToolName,
		Description: "Search the indexed tools for ones matching a capability description.",
		InputSchema: reflectSchema(&vectorSearchArgs{}),
		Annotations: &models.ToolAnnotations{ReadOnlyHint: true},
	}
}

// platformTools returns the built-in tools. Resource tools are included
// only when withResources is set.
func platformTools(withResources bool) []models.Tool {
	tools := []models.Tool{
		searchAvailableExtensionsTool(),
		manageExtensionsTool(),
		manageScheduleTool(),
	}
	if withResources {
		tools = append(tools, readResourceTool(), listResourcesTool())
	}
	return tools
}
