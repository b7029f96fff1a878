// Package config resolves agent settings from the environment and from an
// optional configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Mode is the permission policy knob (GOOSE_MODE).
type Mode string

const (
	// ModeChat skips all tool execution.
	ModeChat Mode = "chat"

	// ModeAuto approves every tool call.
	ModeAuto Mode = "auto"

	// ModeApprove prompts for every tool call without a stored allow.
	ModeApprove Mode = "approve"

	// ModeSmartApprove auto-approves readonly-annotated tools and prompts
	// for the rest.
	ModeSmartApprove Mode = "smart_approve"
)

// Environment variable names.
const (
	EnvMode           = "GOOSE_MODE"
	EnvRouterStrategy = "GOOSE_ROUTER_TOOL_SELECTION_STRATEGY"
)

// GooseMode reads GOOSE_MODE; unset or unrecognized values fall back to
// auto.
func GooseMode() Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(os.Getenv(EnvMode)))) {
	case ModeChat:
		return ModeChat
	case ModeApprove:
		return ModeApprove
	case ModeSmartApprove:
		return ModeSmartApprove
	default:
		return ModeAuto
	}
}

// RouterStrategy reads GOOSE_ROUTER_TOOL_SELECTION_STRATEGY
// (case-insensitive; "vector" enables vector routing).
func RouterStrategy() string {
	return os.Getenv(EnvRouterStrategy)
}

// File is the optional configuration file.
type File struct {
	// ExtensionRegistry points at the extension registry file.
	ExtensionRegistry string `yaml:"extension_registry" json:"extension_registry"`

	// PermissionStore is the path of the permission decision database.
	PermissionStore string `yaml:"permission_store" json:"permission_store"`

	// SessionStore is the path of the session metadata database.
	SessionStore string `yaml:"session_store" json:"session_store"`

	// MaxToolRepetitions configures the tool monitor; zero disables.
	MaxToolRepetitions int `yaml:"max_tool_repetitions" json:"max_tool_repetitions"`

	// LargeResponseThreshold is parsed from the file but not applied: the
	// goose command does not read it, and the agent always truncates at
	// its built-in threshold.
	LargeResponseThreshold int `yaml:"large_response_threshold" json:"large_response_threshold"`

	// ProviderTimeout is parsed from the file but not applied: nothing
	// reads it, and completion calls are bounded only by their context.
	ProviderTimeout time.Duration `yaml:"provider_timeout" json:"provider_timeout"`
}

// Load reads the configuration file at path. The format is selected by
// suffix: .json, .json5, else yaml.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".json5":
		err = json5.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
