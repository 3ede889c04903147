package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	Project  string         `yaml:"project"`
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// DatabaseConfig selects the storage backend by DSN scheme:
// sqlite://path/to/file.db (or sqlite://:memory:) and postgres://... are
// supported.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"auth_token"`
}

// DefaultsConfig seeds the vocabularies of worlds created without explicit
// type lists. Empty lists fall back to the built-in defaults.
type DefaultsConfig struct {
	EntityTypes   []string `yaml:"entity_types"`
	RelationTypes []string `yaml:"relation_types"`
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *ProjectConfig) {
	if strings.TrimSpace(cfg.API.ListenAddr) == "" {
		cfg.API.ListenAddr = ":8080"
	}
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if err := validateVocabulary("defaults.entity_types", cfg.Defaults.EntityTypes); err != nil {
		return err
	}
	return validateVocabulary("defaults.relation_types", cfg.Defaults.RelationTypes)
}

// validateVocabulary rejects blank and duplicate type names. Comparison is
// case- and whitespace-insensitive, matching how types are normalized before
// storage.
func validateVocabulary(field string, values []string) error {
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		key := strings.Join(strings.Fields(strings.ToLower(v)), "_")
		if key == "" {
			return fmt.Errorf("%s entry %d is blank", field, i)
		}
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate %s entry: %s", field, v)
		}
		seen[key] = struct{}{}
	}
	return nil
}
