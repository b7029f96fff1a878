package extensions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tlongwell-block/goose/pkg/models"
)

func TestExtensionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExtensionConfig
		wantErr bool
	}{
		{"stdio ok", ExtensionConfig{Name: "files", Type: TypeStdio, Command: "mcp-files"}, false},
		{"stdio missing command", ExtensionConfig{Name: "files", Type: TypeStdio}, true},
		{"frontend ok", ExtensionConfig{Name: "ui", Type: TypeFrontend, Tools: []models.Tool{{Name: "pick_file"}}}, false},
		{"frontend without tools", ExtensionConfig{Name: "ui", Type: TypeFrontend}, true},
		{"missing name", ExtensionConfig{Type: TypeStdio, Command: "x"}, true},
		{"unknown type", ExtensionConfig{Name: "x", Type: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigManagerLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.yaml")
	content := `
files:
  enabled: true
  config:
    type: stdio
    command: mcp-files
    description: file tools
web:
  enabled: false
  config:
    name: web
    type: stdio
    command: mcp-web
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager()
	if err := m.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	cfg, ok := m.GetConfigByName("files")
	if !ok {
		t.Fatal("files extension missing")
	}
	// Name defaults to the map key when omitted.
	if cfg.Name != "files" || cfg.Command != "mcp-files" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if len(m.All()) != 2 {
		t.Errorf("All() = %d entries", len(m.All()))
	}
	if _, ok := m.GetConfigByName("missing"); ok {
		t.Error("unexpected hit for missing extension")
	}
}

func TestConfigManagerLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.json")
	content := `{"files":{"enabled":true,"config":{"type":"stdio","command":"mcp-files"}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager()
	if err := m.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if cfg, ok := m.GetConfigByName("files"); !ok || cfg.Command != "mcp-files" {
		t.Errorf("config = %+v, ok = %v", cfg, ok)
	}
}
