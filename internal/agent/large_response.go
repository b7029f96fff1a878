package agent

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tlongwell-block/goose/pkg/models"
)

// defaultLargeResponseThreshold is the tool output size, in bytes, beyond
// which outputs are parked as resources and replaced by a truncated
// summary.
const defaultLargeResponseThreshold = 200_000

// truncatedPreviewBytes is how much of an oversized output stays inline.
const truncatedPreviewBytes = 4_000

// processToolResponse post-processes a successful tool outcome. Outputs
// whose combined text exceeds the threshold are saved to the extension
// manager's resource space and replaced by a preview plus a handle the
// model can fetch via platform__read_resource.
func (a *Agent) processToolResponse(outcome models.ToolOutcome) models.ToolOutcome {
	if outcome.Err != nil {
		return outcome
	}

	total := 0
	for _, c := range outcome.Content {
		total += len(c.Text)
	}
	if total <= a.largeResponseThreshold {
		return outcome
	}

	full := models.ConcatText(outcome.Content)
	uri := "goose://tool-output/" + uuid.NewString()
	a.extensionMgr().SaveResource(uri, full)

	preview := full
	if len(preview) > truncatedPreviewBytes {
		preview = preview[:truncatedPreviewBytes]
	}

	summary := fmt.Sprintf(
		"Tool output was %d bytes and has been truncated. The full output is saved as resource %s; list it with %s and fetch it with %s.\n\n%s",
		total, uri, PlatformListResourcesToolName, PlatformReadResourceToolName, preview,
	)

	return models.ToolOutcome{Content: []models.Content{models.NewTextContent(summary)}}
}
