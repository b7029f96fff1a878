package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tlongwell-block/goose/internal/router"
	"github.com/tlongwell-block/goose/pkg/models"
)

// manageExtensions implements platform__manage_extensions. Disable removes
// the extension; enable looks up its config in the registry and adds it.
// After a successful mutation the vector index is updated when routing is
// enabled; an indexing failure is reported as an execution error but the
// extension mutation is not rolled back.
func (a *Agent) manageExtensions(ctx context.Context, arguments json.RawMessage) ([]models.Content, error) {
	var args manageExtensionsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, models.NewExecutionError("Invalid arguments for extension management")
	}
	if args.Action == "" {
		return nil, models.NewExecutionError("Missing 'action' parameter")
	}
	if args.ExtensionName == "" {
		return nil, models.NewExecutionError("Missing 'extension_name' parameter")
	}

	mgr := a.extensionMgr()

	switch args.Action {
	case "disable":
		if err := mgr.RemoveExtension(args.ExtensionName); err != nil {
			return nil, models.NewExecutionError(err.Error())
		}
		if err := a.updateIndexAfterMutation(ctx, args.ExtensionName, router.IndexRemove); err != nil {
			return nil, err
		}
		return []models.Content{models.NewTextContent(
			fmt.Sprintf("The extension '%s' has been disabled successfully", args.ExtensionName),
		)}, nil

	case "enable":
		cfg, ok := mgr.Registry().GetConfigByName(args.ExtensionName)
		if !ok {
			return nil, models.ExecutionErrorf(
				"Extension '%s' not found. Please check the extension name and try again.", args.ExtensionName)
		}
		if err := mgr.AddExtension(ctx, cfg); err != nil {
			return nil, models.NewExecutionError(err.Error())
		}
		if err := a.updateIndexAfterMutation(ctx, args.ExtensionName, router.IndexAdd); err != nil {
			return nil, err
		}
		return []models.Content{models.NewTextContent(
			fmt.Sprintf("The extension '%s' has been installed successfully", args.ExtensionName),
		)}, nil

	default:
		return nil, models.ExecutionErrorf("Unknown action: %s", args.Action)
	}
}

// updateIndexAfterMutation keeps the vector index consistent after an
// extension mutation. The extension change has already taken effect; a
// failure here leaves it enabled but unindexed.
func (a *Agent) updateIndexAfterMutation(ctx context.Context, extensionName string, action router.IndexAction) error {
	selector := a.routerSelector()
	if selector == nil {
		return nil
	}
	if err := router.UpdateExtensionTools(ctx, selector, a.extensionMgr(), extensionName, action); err != nil {
		a.logger.Warn("vector index update failed after extension mutation",
			"extension", extensionName, "action", string(action), "error", err)
		return models.ExecutionErrorf("Failed to update vector index: %v", err)
	}
	return nil
}
