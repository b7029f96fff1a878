package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tlongwell-block/goose/internal/scheduler"
	"github.com/tlongwell-block/goose/pkg/models"
)

var (
	fencedBlockRe  = regexp.MustCompile("(?s)```[^\n]*\n(.*?)\n```")
	bulletMarkerRe = regexp.MustCompile(`^[•\-\*\d]+\.?\s*`)
)

// CreateRecipe asks the provider to distill the conversation into a
// reusable recipe. The model is expected to answer with JSON; a fenced
// block is unwrapped first, and a plain-text "instructions:"/"activities:"
// answer is accepted as a fallback.
func (a *Agent) CreateRecipe(ctx context.Context, conversation []models.Message) (*scheduler.Recipe, error) {
	provider, err := a.currentProvider()
	if err != nil {
		return nil, err
	}

	_, systemPrompt, err := a.prepareToolsAndPrompt()
	if err != nil {
		return nil, err
	}

	a.promptMu.Lock()
	recipePrompt := a.promptManager.RecipePrompt()
	a.promptMu.Unlock()

	messages := append([]models.Message(nil), conversation...)
	messages = append(messages, models.NewUserMessage().WithText(recipePrompt))

	result, _, err := provider.Complete(ctx, systemPrompt, messages, nil)
	if err != nil {
		return nil, err
	}

	content := result.AsConcatText()
	clean := content
	if match := fencedBlockRe.FindStringSubmatch(content); match != nil {
		clean = strings.TrimSpace(match[1])
	}

	instructions, activities, err := parseRecipeResponse(clean, content)
	if err != nil {
		return nil, err
	}

	author := &scheduler.Author{Contact: os.Getenv("USER")}
	return &scheduler.Recipe{
		Title:        "Custom recipe from chat",
		Description:  "a custom recipe instance from this chat session",
		Instructions: instructions,
		Activities:   activities,
		Extensions:   a.ListExtensions(),
		Author:       author,
	}, nil
}

func parseRecipeResponse(clean, raw string) (string, []string, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(clean), &parsed); err == nil {
		instructions, ok := parsed["instructions"].(string)
		if !ok {
			return "", nil, fmt.Errorf("missing 'instructions' in json response")
		}
		rawActivities, ok := parsed["activities"].([]any)
		if !ok {
			return "", nil, fmt.Errorf("missing 'activities' in json response")
		}
		activities := make([]string, 0, len(rawActivities))
		for _, act := range rawActivities {
			s, ok := act.(string)
			if !ok {
				return "", nil, fmt.Errorf("'activities' array element is not a string")
			}
			activities = append(activities, s)
		}
		return instructions, activities, nil
	}

	// Plain-text fallback: everything after "instructions:" up to
	// "activities:", then one activity per bullet line.
	lower := strings.ToLower(raw)
	afterIdx := strings.Index(lower, "instructions:")
	after := raw
	if afterIdx >= 0 {
		after = raw[afterIdx+len("instructions:"):]
	}

	instructionsPart := after
	activitiesText := ""
	if actIdx := strings.Index(strings.ToLower(after), "activities:"); actIdx >= 0 {
		instructionsPart = after[:actIdx]
		activitiesText = after[actIdx+len("activities:"):]
	}

	instructions := strings.TrimFunc(instructionsPart, func(r rune) bool {
		return r == '#' || r == ' ' || r == '\n' || r == '\t'
	})

	var activities []string
	for _, line := range strings.Split(activitiesText, "\n") {
		line = strings.TrimSpace(bulletMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			activities = append(activities, line)
		}
	}

	return instructions, activities, nil
}
