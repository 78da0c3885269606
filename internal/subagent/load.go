package subagent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDefinition mirrors Definition's wire shape for YAML (de)serialization;
// Definition itself carries no struct tags so callers embedding it in Go
// code aren't forced to think in YAML field names.
type yamlDefinition struct {
	AgentType      string   `yaml:"agent_type"`
	Model          string   `yaml:"model,omitempty"`
	SystemPrompt   string   `yaml:"system_prompt"`
	AllowedTools   []string `yaml:"allowed_tools,omitempty"`
	DeniedTools    []string `yaml:"denied_tools,omitempty"`
	ForkContext    bool     `yaml:"fork_context"`
	MaxIterations  int      `yaml:"max_iterations"`
	Streaming      bool     `yaml:"streaming"`
	AllowRecursion bool     `yaml:"allow_recursion"`
}

func (y yamlDefinition) toDefinition() Definition {
	return Definition{
		AgentType:      y.AgentType,
		Model:          y.Model,
		SystemPrompt:   y.SystemPrompt,
		AllowedTools:   y.AllowedTools,
		DeniedTools:    y.DeniedTools,
		ForkContext:    y.ForkContext,
		MaxIterations:  y.MaxIterations,
		Streaming:      y.Streaming,
		AllowRecursion: y.AllowRecursion,
	}
}

// manifest is the top-level shape of a definitions file: a flat list of
// agent definitions, the same flattened structure the teacher's multi-agent
// YAML config uses for its Agents field.
type manifest struct {
	Agents []yamlDefinition `yaml:"agents"`
}

// ParseDefinitionsYAML parses a YAML document listing subagent
// definitions and validates each one.
func ParseDefinitionsYAML(data []byte) ([]Definition, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("subagent: parse definitions yaml: %w", err)
	}

	defs := make([]Definition, 0, len(m.Agents))
	for i, y := range m.Agents {
		d := y.toDefinition()
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("subagent: definition at index %d: %w", i, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// LoadDefinitions reads and parses a YAML definitions file from path.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("subagent: read definitions file: %w", err)
	}
	return ParseDefinitionsYAML(data)
}

// LoadInto reads path and registers every definition it contains into r,
// stopping at the first invalid definition. A definition whose agent type
// is already registered replaces the earlier one.
func LoadInto(r *DefinitionRegistry, path string) error {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return err
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
