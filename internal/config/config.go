// Package config loads jimi's configuration from a YAML file with
// environment-variable overrides. Precedence, lowest to highest: built-in
// defaults, the config file, JIMI_* environment variables, command-line
// flags (applied by the caller).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Provider Provider `yaml:"provider"`
	Agent    Agent    `yaml:"agent"`

	// MCPServers lists external MCP tool servers to launch over stdio.
	MCPServers []MCPServer `yaml:"mcp_servers"`

	// Yolo skips all approval prompts. Dangerous outside sandboxes.
	Yolo bool `yaml:"yolo"`
}

// Provider selects and authenticates the LLM backend.
type Provider struct {
	// Name is "anthropic" or "openai". "openai" also covers compatible
	// endpoints selected via BaseURL.
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Agent tunes the execution loop.
type Agent struct {
	MaxSteps  int `yaml:"max_steps"`
	MaxTokens int `yaml:"max_tokens"`

	// SpecPath points at an agent spec YAML. Empty uses the built-in
	// general-purpose agent.
	SpecPath string `yaml:"spec"`
}

// MCPServer describes one stdio MCP server process.
type MCPServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: Provider{Name: "anthropic"},
	}
}

// Path returns the config file location for a working directory: the
// project-local .jimi/config.yaml if present, otherwise the user-level
// ~/.config/jimi/config.yaml.
func Path(workdir string) string {
	local := filepath.Join(workdir, ".jimi", "config.yaml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return local
	}
	return filepath.Join(home, ".config", "jimi", "config.yaml")
}

// Load reads the file at path, if it exists, and applies environment
// overrides. A missing file is not an error; env-only setups are common.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JIMI_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("JIMI_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("JIMI_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("JIMI_MODEL_NAME"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("JIMI_YOLO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Yolo = b
		}
	}
}

// LoadMCPServers reads a standalone YAML list of MCP servers, used by the
// --mcp flag to add servers beyond those in the main config.
func LoadMCPServers(path string) ([]MCPServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config: %w", err)
	}
	var servers []MCPServer
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &servers); err != nil {
		return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
	}
	return servers, nil
}

// Validate checks the settings a session cannot start without.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("provider.name is required")
	default:
		return fmt.Errorf("unknown provider %q (want anthropic or openai)", c.Provider.Name)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required (or set JIMI_API_KEY)")
	}
	for i, srv := range c.MCPServers {
		if srv.Name == "" {
			return fmt.Errorf("mcp_servers[%d]: name is required", i)
		}
		if srv.Command == "" {
			return fmt.Errorf("mcp_servers[%d] (%s): command is required", i, srv.Name)
		}
	}
	return nil
}
