// Package config loads and validates the shipwright configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. A loaded Config is treated
// as immutable; each phase receives a value and never mutates it.
type Config struct {
	Workspace string         `yaml:"workspace"` // monorepo root; defaults to "."
	Build     BuildConfig    `yaml:"build"`
	Registry  RegistryConfig `yaml:"registry"`
	Deploy    DeployConfig   `yaml:"deploy"`
	Journal   string         `yaml:"journal,omitempty"` // optional sqlite event journal path

	Force    bool `yaml:"force,omitempty"`     // bypass change detection, rebuild everything
	FailFast bool `yaml:"fail_fast,omitempty"` // abort the run at the first failed unit
}

// BuildConfig describes where build units live and how they are bundled.
type BuildConfig struct {
	ServicesDir   string   `yaml:"services_dir"`   // directory of bundlable entry points
	EntryFile     string   `yaml:"entry_file"`     // entry filename inside each unit directory
	OutputDir     string   `yaml:"output_dir"`     // per-unit outputs land under <output_dir>/<name>
	Extensions    []string `yaml:"extensions"`     // source ecosystem filter for resolved inputs
	BundlerConfig string   `yaml:"bundler_config"` // config path handed to the dependency extractor
	LintConfig    string   `yaml:"lint_config"`    // config path handed to the lint engine
}

// RegistryConfig describes the container registry images are published to.
type RegistryConfig struct {
	Host       string   `yaml:"host"`       // e.g. ghcr.io
	Repository string   `yaml:"repository"` // e.g. acme/platform
	BaseImage  string   `yaml:"base_image"` // runtime base layer for packaged artifacts
	Auth       []string `yaml:"auth"`       // "registry:user:pass" or "user:pass" entries
}

// DeployConfig describes the cluster manifests reconciled on deploy.
type DeployConfig struct {
	ManifestsDir string `yaml:"manifests_dir"`
}

// DefaultHost is assumed for bare "user:pass" auth entries.
const DefaultHost = "docker.io"

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.Build.ServicesDir == "" {
		c.Build.ServicesDir = "services"
	}
	if c.Build.EntryFile == "" {
		c.Build.EntryFile = "index.ts"
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = "dist"
	}
	if len(c.Build.Extensions) == 0 {
		c.Build.Extensions = []string{".ts", ".tsx", ".js"}
	}
	if c.Registry.Host == "" {
		c.Registry.Host = DefaultHost
	}
	if c.Registry.BaseImage == "" {
		c.Registry.BaseImage = "node:22-alpine"
	}
	if c.Deploy.ManifestsDir == "" {
		c.Deploy.ManifestsDir = "manifests"
	}
}

// Validate checks structural invariants after defaults are applied.
func (c *Config) Validate() error {
	if c.Registry.Repository == "" {
		return fmt.Errorf("registry.repository must be configured")
	}
	if filepath.IsAbs(c.Build.ServicesDir) {
		return fmt.Errorf("build.services_dir must be relative to the workspace")
	}
	if filepath.IsAbs(c.Build.OutputDir) {
		return fmt.Errorf("build.output_dir must be relative to the workspace")
	}
	return nil
}

// ServicesPath returns the absolute services directory.
func (c *Config) ServicesPath() string {
	return filepath.Join(c.Workspace, c.Build.ServicesDir)
}

// OutputPath returns the absolute output directory.
func (c *Config) OutputPath() string {
	return filepath.Join(c.Workspace, c.Build.OutputDir)
}

// ManifestsPath returns the absolute manifests directory.
func (c *Config) ManifestsPath() string {
	return filepath.Join(c.Workspace, c.Deploy.ManifestsDir)
}
