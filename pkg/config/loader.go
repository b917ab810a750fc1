package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AppYAMLConfig is the top-level app.yaml file structure.
type AppYAMLConfig struct {
	Mode      Mode             `yaml:"mode"`
	Defaults  *Defaults        `yaml:"defaults"`
	Endpoints *EndpointsConfig `yaml:"endpoints"`
}

// ScenariosYAMLConfig is the top-level scenarios.yaml file structure.
type ScenariosYAMLConfig struct {
	Scenarios map[ScenarioName]*ScenarioConfig `yaml:"scenarios"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point, mirroring tarsy's pkg/config.Initialize:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined scenarios
//  4. Apply default values
//  5. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"scenarios", stats.Scenarios, "mode", stats.Mode)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	appCfg, err := loader.loadAppYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError("app.yaml", err)
		}
		appCfg = &AppYAMLConfig{Mode: ModeLocal}
	}

	scenariosCfg, err := loader.loadScenariosYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError("scenarios.yaml", err)
		}
		// scenarios.yaml is optional: a deployment may rely entirely on
		// the built-in snow/soil/vegetation definitions.
		scenariosCfg = &ScenariosYAMLConfig{Scenarios: map[ScenarioName]*ScenarioConfig{}}
	}

	merged := mergeScenarios(BuiltinScenarios(), scenariosCfg.Scenarios)

	defaults := DefaultDefaults()
	if appCfg.Defaults != nil {
		if err := mergo.Merge(defaults, appCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}
	if v := os.Getenv("LOCAL_TOKEN"); v != "" {
		defaults.LocalToken = v
	}

	endpoints := &EndpointsConfig{}
	if appCfg.Endpoints != nil {
		*endpoints = *appCfg.Endpoints
	}

	mode := appCfg.Mode
	if mode == "" {
		mode = ModeLocal
	}

	return &Config{
		configDir: configDir,
		Mode:      mode,
		Defaults:  defaults,
		Endpoints: endpoints,
		Scenarios: NewScenarioRegistry(merged),
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadAppYAML() (*AppYAMLConfig, error) {
	cfg := &AppYAMLConfig{}
	if err := l.loadYAML("app.yaml", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *configLoader) loadScenariosYAML() (*ScenariosYAMLConfig, error) {
	cfg := &ScenariosYAMLConfig{Scenarios: make(map[ScenarioName]*ScenarioConfig)}
	if err := l.loadYAML("scenarios.yaml", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
