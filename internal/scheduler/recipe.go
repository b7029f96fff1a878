package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recipe is a stored agent task definition. Scheduled jobs point at a
// recipe file by path.
type Recipe struct {
	Version      string   `yaml:"version,omitempty" json:"version,omitempty"`
	Title        string   `yaml:"title" json:"title"`
	Description  string   `yaml:"description" json:"description"`
	Instructions string   `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Prompt       string   `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Activities   []string `yaml:"activities,omitempty" json:"activities,omitempty"`
	Extensions   []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Author       *Author  `yaml:"author,omitempty" json:"author,omitempty"`
}

// Author records who created a recipe.
type Author struct {
	Contact string `yaml:"contact,omitempty" json:"contact,omitempty"`
}

// ParseRecipe parses recipe content. The format is selected by the path
// suffix: JSON when it ends in .json, YAML otherwise.
func ParseRecipe(path string, content []byte) (*Recipe, error) {
	var recipe Recipe
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(content, &recipe); err != nil {
			return nil, fmt.Errorf("Invalid JSON recipe: %v", err)
		}
	} else {
		if err := yaml.Unmarshal(content, &recipe); err != nil {
			return nil, fmt.Errorf("Invalid YAML recipe: %v", err)
		}
	}
	return &recipe, nil
}

// LoadRecipe reads and parses the recipe file at path.
func LoadRecipe(path string) (*Recipe, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("Recipe file not found: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot read recipe file: %v", err)
	}
	return ParseRecipe(path, content)
}
