package hooks

// Config is the top-level configuration for hooks loaded from .gyre.hooks.yml.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig contains all hook configurations.
type HooksConfig struct {
	LoopStart      *HookConfig `yaml:"loop_start"`
	IterationStart *HookConfig `yaml:"iteration_start"`
	ItemComplete   *HookConfig `yaml:"item_complete"`
	LoopEnd        *HookConfig `yaml:"loop_end"`
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"` // seconds, default 30
}

// DefaultTimeout is the default timeout for hook execution in seconds.
const DefaultTimeout = 30
