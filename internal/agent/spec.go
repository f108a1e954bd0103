package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Spec is the resolved in-memory description of an agent: its system prompt
// template, the tool filter, and any declared sub-agents.
type Spec struct {
	Name          string
	Prompt        string
	PromptArgs    map[string]string
	AllowedTools  map[string]struct{}
	ExcludedTools map[string]struct{}
	Subagents     map[string]*SubagentSpec
}

// SubagentSpec points at a child agent definition. The child spec is loaded
// lazily on first Task invocation and cached.
type SubagentSpec struct {
	Path        string
	Description string

	mu       sync.Mutex
	resolved *Spec
}

// specFile is the YAML document shape. No version or extend keys; the file
// is the resolved form.
type specFile struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
	Tools  struct {
		Allowed  []string `yaml:"allowed"`
		Excluded []string `yaml:"excluded"`
	} `yaml:"tools"`
	Subagents map[string]struct {
		Path        string `yaml:"path"`
		Description string `yaml:"description"`
	} `yaml:"subagents"`
}

// LoadSpec parses an agent definition from a YAML file. Sub-agent paths are
// resolved relative to the file's directory.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent spec: %w", err)
	}
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent spec %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	spec := &Spec{
		Name:          f.Name,
		Prompt:        f.Prompt,
		AllowedTools:  toSet(f.Tools.Allowed),
		ExcludedTools: toSet(f.Tools.Excluded),
	}
	if len(f.Subagents) > 0 {
		spec.Subagents = make(map[string]*SubagentSpec, len(f.Subagents))
		dir := filepath.Dir(path)
		for name, sub := range f.Subagents {
			p := sub.Path
			if p != "" && !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			spec.Subagents[name] = &SubagentSpec{Path: p, Description: sub.Description}
		}
	}
	return spec, nil
}

// DefaultSpec is the agent used when no spec file is given: every registered
// tool available, a generic coding-assistant prompt.
func DefaultSpec() *Spec {
	return &Spec{
		Name: "jimi",
		Prompt: strings.TrimSpace(`
You are jimi, a coding assistant operating in the user's working directory.
Use the available tools to inspect and change files, run commands, and answer
questions. Be concise. When you are finished, reply without calling tools.

Current time: {{NOW}}

Directory listing:
{{WORK_DIR_LS}}

Project notes (AGENTS.md):
{{AGENTS_MD}}
`),
	}
}

// Resolve loads and caches the child spec.
func (s *SubagentSpec) Resolve() (*Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved != nil {
		return s.resolved, nil
	}
	spec, err := LoadSpec(s.Path)
	if err != nil {
		return nil, err
	}
	s.resolved = spec
	return spec, nil
}

// RenderPrompt substitutes {{VAR}} placeholders in the prompt template with
// the workspace variables and the spec's own prompt args.
func (s *Spec) RenderPrompt(vars map[string]string) string {
	out := s.Prompt
	for k, v := range s.PromptArgs {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
