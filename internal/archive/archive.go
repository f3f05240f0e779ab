// Package archive snapshots the ledger and journal when the working context
// changes between runs.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"github.com/gyre-dev/gyre/internal/journal"
	"github.com/gyre-dev/gyre/internal/ledger"
)

// DirName is the archive root inside the gyre data directory.
const DirName = "archive"

// Manager copies prior ledger and journal files aside before a new context
// starts. It never deletes or rewrites the live ledger.
type Manager struct {
	DataDir string
	Journal *journal.Journal
}

// NewManager returns a Manager using dataDir and the given journal.
func NewManager(dataDir string, j *journal.Journal) *Manager {
	return &Manager{DataDir: dataDir, Journal: j}
}

// CheckAndArchive compares currentID against the recorded context id. On a
// change it snapshots the existing ledger and journal into a timestamped
// archive directory and resets the journal, carrying the patterns section
// over. The updated state and the created archive directory ("" when none)
// are returned; persisting the state is the caller's job.
func (m *Manager) CheckAndArchive(st State, currentID string) (State, string, error) {
	if st.ContextID == currentID {
		return st, "", nil
	}

	next := State{ContextID: currentID, UpdatedAt: time.Now()}

	if st.ContextID == "" {
		log.Debug().Str("context", currentID).Msg("first run, recording context")
		return next, "", nil
	}

	ledgerPath := filepath.Join(m.DataDir, ledger.FileName)
	journalPath := m.Journal.Path()

	_, ledgerErr := os.Stat(ledgerPath)
	_, journalErr := os.Stat(journalPath)
	if ledgerErr != nil && journalErr != nil {
		log.Debug().Str("context", currentID).Msg("context changed, nothing to archive")
		return next, "", nil
	}

	dest, err := m.archiveDir(st.ContextID, next.UpdatedAt)
	if err != nil {
		return st, "", err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return st, "", fmt.Errorf("create archive directory: %w", err)
	}

	if ledgerErr == nil {
		if err := copyFile(ledgerPath, filepath.Join(dest, ledger.FileName)); err != nil {
			return st, "", fmt.Errorf("archive ledger: %w", err)
		}
	}
	if journalErr == nil {
		if err := copyFile(journalPath, filepath.Join(dest, journal.FileName)); err != nil {
			return st, "", fmt.Errorf("archive journal: %w", err)
		}

		patterns, err := m.Journal.ExtractPatterns()
		if err != nil {
			log.Warn().Err(err).Msg("could not extract patterns, resetting journal without them")
			patterns = ""
		}
		if err := m.Journal.Reset(patterns); err != nil {
			return st, "", fmt.Errorf("reset journal: %w", err)
		}
	}

	log.Info().Str("previous", st.ContextID).Str("current", currentID).
		Str("archive", dest).Msg("archived prior context")
	return next, dest, nil
}

// archiveDir picks a fresh directory name for the snapshot. A numeric suffix
// resolves same-second collisions.
func (m *Manager) archiveDir(contextID string, at time.Time) (string, error) {
	base := fmt.Sprintf("%s-%s", at.Format("20060102-150405"), slug.Make(contextID))
	dest := filepath.Join(m.DataDir, DirName, base)
	for i := 2; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest, nil
		} else if err != nil {
			return "", fmt.Errorf("probe archive directory: %w", err)
		}
		dest = filepath.Join(m.DataDir, DirName, fmt.Sprintf("%s-%d", base, i))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
