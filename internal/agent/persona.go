package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona customizes the agent's voice and limits without replacing the
// snippet protocol. Its system prompt is appended to the default one.
type Persona struct {
	Name         string `yaml:"name"`
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTurns     int    `yaml:"max_tool_turns"`
}

// LoadPersona reads a persona from a YAML file.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona %s: %w", path, err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing persona %s: %w", path, err)
	}

	return &p, nil
}

// Apply configures the agent with the persona's overrides.
func (p *Persona) Apply(a *Agent) {
	if p.SystemPrompt != "" {
		a.SetSystemPrompt(defaultSystemPrompt + "\n\n" + p.SystemPrompt)
	}
	if p.MaxTurns > 0 {
		a.SetMaxTurns(p.MaxTurns)
	}
}
