package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".reproseal/config.yaml"

type Config struct {
	Snapshot SnapshotDefaults `yaml:"snapshot"`
	Run      RunDefaults      `yaml:"run"`
	Bundle   BundleDefaults   `yaml:"bundle"`
}

type SnapshotDefaults struct {
	SourceKind string `yaml:"source_kind"`
	OutputPath string `yaml:"output_path"`
}

type RunDefaults struct {
	ReproducibilityClass string `yaml:"reproducibility_class"`
	EnvironmentPlugin    string `yaml:"environment_plugin"`
}

type BundleDefaults struct {
	Profile   string `yaml:"profile"`
	OutputDir string `yaml:"output_dir"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Snapshot.SourceKind = strings.ToLower(strings.TrimSpace(configuration.Snapshot.SourceKind))
	configuration.Snapshot.OutputPath = strings.TrimSpace(configuration.Snapshot.OutputPath)
	configuration.Run.ReproducibilityClass = strings.ToLower(strings.TrimSpace(configuration.Run.ReproducibilityClass))
	configuration.Run.EnvironmentPlugin = strings.TrimSpace(configuration.Run.EnvironmentPlugin)
	configuration.Bundle.Profile = strings.TrimSpace(configuration.Bundle.Profile)
	configuration.Bundle.OutputDir = strings.TrimSpace(configuration.Bundle.OutputDir)
}
