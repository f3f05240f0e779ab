package gate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional per-project gates file.
const ConfigFileName = ".gyre.gates.yml"

type fileConfig struct {
	Version int    `yaml:"version"`
	Gates   []Gate `yaml:"gates"`
}

// LoadConfig reads the gates file from workDir. A missing file yields the
// default gate set; a present but unparsable or invalid file is an error.
func LoadConfig(workDir string) ([]Gate, error) {
	path := filepath.Join(workDir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("no gates file, using defaults")
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read gates file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse gates file: %w", err)
	}
	if len(cfg.Gates) == 0 {
		return nil, fmt.Errorf("gates file %s defines no gates", ConfigFileName)
	}

	seen := make(map[string]bool, len(cfg.Gates))
	for i, g := range cfg.Gates {
		if g.Name == "" {
			return nil, fmt.Errorf("gate %d has no name", i)
		}
		if g.Command == "" {
			return nil, fmt.Errorf("gate %q has no command", g.Name)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate gate name %q", g.Name)
		}
		seen[g.Name] = true
	}

	log.Debug().Int("gates", len(cfg.Gates)).Msg("gates file loaded")
	return cfg.Gates, nil
}
