package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes an external command that acts as an automated worker.
type Config struct {
	ID          string            `yaml:"id" json:"id"`
	Role        string            `yaml:"role" json:"role"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of workers.yaml
type ConfigFile struct {
	Workers []Config `yaml:"workers" json:"workers"`
}

// LoadWorkers reads a configuration file (YAML or JSON) and returns the
// worker definitions in file order.
func LoadWorkers(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workers config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	seen := make(map[string]bool, len(cfg.Workers))
	for i, w := range cfg.Workers {
		switch {
		case w.ID == "":
			return nil, fmt.Errorf("worker %d: id is required", i)
		case w.Role == "":
			return nil, fmt.Errorf("worker %q: role is required", w.ID)
		case w.Command == "":
			return nil, fmt.Errorf("worker %q: command is required", w.ID)
		case seen[w.ID]:
			return nil, fmt.Errorf("worker %q: duplicate id", w.ID)
		}
		seen[w.ID] = true
	}
	return cfg.Workers, nil
}
