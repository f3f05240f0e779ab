package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// FileName is the ledger file name inside the gyre data directory.
const FileName = "ledger.json"

// Load reads and validates the ledger at path.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	seen := make(map[string]bool, len(l.Items))
	for _, item := range l.Items {
		if seen[item.ID] {
			return nil, fmt.Errorf("%w: duplicate item id %q", ErrMalformed, item.ID)
		}
		seen[item.ID] = true
	}

	log.Debug().Str("path", path).Int("items", len(l.Items)).Msg("ledger loaded")
	return &l, nil
}

// Save persists the ledger atomically: the document is written to a temp
// file in the same directory and renamed over the target, so readers never
// observe a partial write.
func Save(path string, l *Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace ledger: %w", err)
	}

	log.Debug().Str("path", path).Int("remaining", l.RemainingCount()).Msg("ledger saved")
	return nil
}
