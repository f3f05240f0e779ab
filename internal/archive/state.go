package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// StateFileName is the archival state record inside the gyre data directory.
const StateFileName = "state.json"

// State records the working context seen by the previous run. The zero value
// means no previous run was recorded.
type State struct {
	ContextID string    `json:"contextId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoadState reads the state record from dataDir. A missing or unreadable
// file yields the zero State so a fresh run can proceed.
func LoadState(dataDir string) State {
	path := filepath.Join(dataDir, StateFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read archival state")
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to parse archival state")
		return State{}
	}
	return st
}

// SaveState writes the state record to dataDir, creating it if needed.
func SaveState(dataDir string, st State) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archival state: %w", err)
	}

	path := filepath.Join(dataDir, StateFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archival state: %w", err)
	}

	log.Debug().Str("context", st.ContextID).Msg("archival state saved")
	return nil
}
