package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tlongwell-block/goose/internal/extensions"
)

const baseSystemPrompt = `You are goose, a general-purpose AI agent. You solve tasks by
conversing with the user and calling the tools made available to you.
Prefer calling a tool over guessing; report tool failures honestly.`

const recipePrompt = `Summarize this session as a reusable recipe. Respond with JSON
containing "instructions" (string) and "activities" (array of strings).`

// PromptManager assembles the system prompt from the base template, the
// running extensions' instructions, and caller-supplied extras.
type PromptManager struct {
	mu       sync.Mutex
	override string
	extras   []string
}

// NewPromptManager creates an empty prompt manager.
func NewPromptManager() *PromptManager {
	return &PromptManager{}
}

// AddExtra appends one instruction to the system prompt.
func (p *PromptManager) AddExtra(instruction string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extras = append(p.extras, instruction)
}

// SetOverride replaces the system prompt template entirely.
func (p *PromptManager) SetOverride(template string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = template
}

// BuildSystemPrompt renders the system prompt.
func (p *PromptManager) BuildSystemPrompt(infos []extensions.ExtensionInfo, frontendInstructions, modelName string) string {
	p.mu.Lock()
	override := p.override
	extras := append([]string(nil), p.extras...)
	p.mu.Unlock()

	var b strings.Builder
	if override != "" {
		b.WriteString(override)
	} else {
		b.WriteString(baseSystemPrompt)
		if modelName != "" {
			fmt.Fprintf(&b, "\n\nYou are running on model %s.", modelName)
		}
	}

	for _, info := range infos {
		if info.Instructions == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n## Extension: %s\n%s", info.Name, info.Instructions)
	}
	if frontendInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(frontendInstructions)
	}
	for _, extra := range extras {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// RecipePrompt returns the prompt used to distill a session into a
// recipe.
func (p *PromptManager) RecipePrompt() string {
	return recipePrompt
}

// PlanPrompt renders the planning prompt listing the available tools.
func (p *PromptManager) PlanPrompt(tools []ToolInfo) string {
	var b strings.Builder
	b.WriteString("Create a step-by-step plan for the user's request using only these tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			fmt.Fprintf(&b, " (parameters: %s)", strings.Join(t.Parameters, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ToolInfo summarizes one tool for prompt building.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  []string
}
