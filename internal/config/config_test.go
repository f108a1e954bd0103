package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_JIMI_KEY", "sk-from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
provider:
  name: openai
  api_key: ${TEST_JIMI_KEY}
  model: gpt-4o
agent:
  max_steps: 25
yolo: true
mcp_servers:
  - name: fs
    command: mcp-filesystem
    args: ["--root", "/tmp"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Agent.MaxSteps != 25 {
		t.Errorf("max_steps = %d", cfg.Agent.MaxSteps)
	}
	if !cfg.Yolo {
		t.Error("yolo not set")
	}
	if len(cfg.MCPServers) != 1 || cfg.MCPServers[0].Name != "fs" {
		t.Errorf("mcp_servers = %+v", cfg.MCPServers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("default provider = %q", cfg.Provider.Name)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "provider:\n  name: anthropic\n  api_key: from-file\n  model: claude-sonnet-4\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JIMI_API_KEY", "from-env")
	t.Setenv("JIMI_MODEL_NAME", "claude-opus-4")
	t.Setenv("JIMI_YOLO", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api_key = %q, want env override", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "claude-opus-4" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if !cfg.Yolo {
		t.Error("JIMI_YOLO not applied")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("missing api key accepted")
	}
	cfg.Provider.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	cfg.Provider.Name = "mystery"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
	cfg.Provider.Name = "openai"
	cfg.MCPServers = []MCPServer{{Name: "fs"}}
	if err := cfg.Validate(); err == nil {
		t.Error("MCP server without command accepted")
	}
}

func TestPathPrefersLocal(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".jimi", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Path(dir); got != local {
		t.Errorf("Path = %q, want %q", got, local)
	}
}
