// Package extensions owns the out-of-process tool providers available to
// the agent. An extension is a subprocess speaking JSON-RPC over stdio;
// its tools are exposed to the provider under a "<extension>__<tool>"
// prefix. Frontend extensions are configuration-only: their tools execute
// in the caller's process.
package extensions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/tlongwell-block/goose/pkg/models"
)

// ExtensionType identifies how an extension executes.
type ExtensionType string

const (
	// TypeStdio runs the extension as a subprocess over stdio.
	TypeStdio ExtensionType = "stdio"

	// TypeFrontend marks tools executed by the caller of the reply stream.
	TypeFrontend ExtensionType = "frontend"
)

// ExtensionConfig describes one extension.
type ExtensionConfig struct {
	Name string        `yaml:"name" json:"name"`
	Type ExtensionType `yaml:"type" json:"type"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Stdio options.
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Frontend options.
	Tools        []models.Tool `yaml:"tools,omitempty" json:"tools,omitempty"`
	Instructions string        `yaml:"instructions,omitempty" json:"instructions,omitempty"`
}

// Validate checks the configuration.
func (c *ExtensionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("extension name is required")
	}
	switch c.Type {
	case TypeStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio config for %s: command is required", c.Name)
		}
	case TypeFrontend:
		if len(c.Tools) == 0 {
			return fmt.Errorf("frontend config for %s: at least one tool is required", c.Name)
		}
	default:
		return fmt.Errorf("extension %s: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// RegistryEntry is one entry in the extension registry file.
type RegistryEntry struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Config  ExtensionConfig `yaml:"config" json:"config"`
}

// ConfigManager is the registry of known extensions, loaded from a yaml,
// json, or json5 file. Lookups are by extension name.
type ConfigManager struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// NewConfigManager creates an empty registry.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{entries: make(map[string]RegistryEntry)}
}

// LoadFile replaces the registry with the contents of path. The format is
// selected by suffix: .json, .json5, else yaml.
func (m *ConfigManager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read extension registry: %w", err)
	}

	var entries map[string]RegistryEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &entries)
	case ".json5":
		err = json5.Unmarshal(data, &entries)
	default:
		err = yaml.Unmarshal(data, &entries)
	}
	if err != nil {
		return fmt.Errorf("parse extension registry %s: %w", path, err)
	}

	for name, entry := range entries {
		if entry.Config.Name == "" {
			entry.Config.Name = name
			entries[name] = entry
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

// Set adds or replaces a registry entry.
func (m *ConfigManager) Set(entry RegistryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Config.Name] = entry
}

// GetConfigByName returns the config for name, or false if unknown.
func (m *ConfigManager) GetConfigByName(name string) (ExtensionConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[name]
	return entry.Config, ok
}

// All returns all registry entries.
func (m *ConfigManager) All() []RegistryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry)
	}
	return out
}
