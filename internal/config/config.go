// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gyre-dev/gyre/internal/sentinel"
)

// AgentConfig controls how the coding agent subprocess is invoked.
type AgentConfig struct {
	Command    string        `mapstructure:"command" yaml:"command"`
	Args       []string      `mapstructure:"args" yaml:"args"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries    int           `mapstructure:"retries" yaml:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// LoopConfig controls the iteration loop.
type LoopConfig struct {
	MaxIterations int    `mapstructure:"max_iterations" yaml:"max_iterations"`
	Sentinel      string `mapstructure:"sentinel" yaml:"sentinel"`
}

// GitConfig controls version-control integration.
type GitConfig struct {
	Commit bool `mapstructure:"commit" yaml:"commit"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	Template string `mapstructure:"template" yaml:"template"`
}

// Config holds all configuration values for gyre.
type Config struct {
	Agent   AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Loop    LoopConfig   `mapstructure:"loop" yaml:"loop"`
	Git     GitConfig    `mapstructure:"git" yaml:"git"`
	Log     LogConfig    `mapstructure:"log" yaml:"log"`
	Prompt  PromptConfig `mapstructure:"prompt" yaml:"prompt"`
	DataDir string       `mapstructure:"data_dir" yaml:"data_dir"`
}

// envKeys are all config keys with explicit ENV bindings.
var envKeys = []string{
	"agent.command",
	"agent.args",
	"agent.timeout",
	"agent.retries",
	"agent.retry_delay",
	"loop.max_iterations",
	"loop.sentinel",
	"git.commit",
	"log.level",
	"log.file",
	"prompt.template",
	"data_dir",
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("gyre")

	setDefaults(v)

	// Setup ENV binding with GYRE_ prefix
	v.SetEnvPrefix("GYRE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	for _, key := range envKeys {
		envName := "GYRE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		// Need to set config file explicitly for merge
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// agent.command has no default - it's required
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.timeout", "15m")
	v.SetDefault("agent.retries", 2)
	v.SetDefault("agent.retry_delay", "5s")
	v.SetDefault("loop.max_iterations", 10)
	v.SetDefault("loop.sentinel", sentinel.Marker)
	v.SetDefault("git.commit", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("prompt.template", "")
	v.SetDefault("data_dir", ".gyre")
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command is required (set it in gyre.yml or GYRE_AGENT_COMMAND)")
	}
	return nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/gyre/gyre.yml or $XDG_CONFIG_HOME/gyre/gyre.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gyre", "gyre.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gyre", "gyre.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./gyre.yml in the current working directory.
func ProjectPath() string {
	return "gyre.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return writeConfig(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return writeConfig(ProjectPath(), cfg)
}

func writeConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
