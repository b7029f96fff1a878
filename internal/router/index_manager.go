package router

import (
	"context"
	"fmt"

	"github.com/tlongwell-block/goose/pkg/models"
)

// ToolSource yields an extension's current tool set; satisfied by the
// extension manager.
type ToolSource interface {
	GetPrefixedTools(extensionName string) ([]models.Tool, error)
}

// Enabled reports whether vector tool routing is active.
func Enabled(selector Selector) bool {
	return selector != nil
}

// IndexAction names a tool-set mutation applied to the index.
type IndexAction string

const (
	IndexAdd    IndexAction = "add"
	IndexRemove IndexAction = "remove"
)

// UpdateExtensionTools keeps the index consistent after an extension is
// enabled or disabled. The extension mutation itself has already happened;
// a failure here leaves the extension usable but unindexed.
func UpdateExtensionTools(ctx context.Context, selector Selector, source ToolSource, extensionName string, action IndexAction) error {
	switch action {
	case IndexRemove:
		return selector.RemoveTools(ctx, extensionName)
	case IndexAdd:
		tools, err := source.GetPrefixedTools(extensionName)
		if err != nil {
			return fmt.Errorf("failed to list tools for %s: %w", extensionName, err)
		}
		return selector.IndexTools(ctx, extensionName, tools)
	default:
		return fmt.Errorf("unknown index action %q", action)
	}
}

// IndexPlatformTools seeds the index with the agent's built-in tools.
func IndexPlatformTools(ctx context.Context, selector Selector, tools []models.Tool) error {
	return selector.IndexTools(ctx, "platform", tools)
}
