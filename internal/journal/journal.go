// Package journal maintains the append-only progress log written after each
// completed iteration.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FileName is the journal file name inside the gyre data directory.
const FileName = "journal.md"

const (
	patternsHeading   = "## Patterns"
	iterationsHeading = "## Iterations"

	header = `# Progress Journal

Learnings from completed iterations. Newest entries last.

`

	emptyPatterns = patternsHeading + `

(recurring approaches worth repeating go here)

`
)

// Entry is one journal record.
type Entry struct {
	Timestamp time.Time
	ItemID    string
	Title     string
	Summary   string
	Files     []string
}

// Journal reads and writes a single journal file.
type Journal struct {
	path string
}

// New returns a journal bound to path. The file may not exist yet.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// DefaultContents is the document a fresh journal starts from.
func DefaultContents() string {
	return header + emptyPatterns + iterationsHeading + "\n"
}

// Append adds a timestamped record at the end of the journal, creating the
// file with the standard skeleton when absent.
func (j *Journal) Append(e Entry) error {
	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		if err := os.WriteFile(j.path, []byte(DefaultContents()), 0o644); err != nil {
			return fmt.Errorf("create journal: %w", err)
		}
	}

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEntry(e)); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}

	log.Debug().Str("item", e.ItemID).Msg("journal entry appended")
	return nil
}

// Read returns the whole journal. A missing file reads as empty.
func (j *Journal) Read() (string, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read journal: %w", err)
	}
	return string(data), nil
}

// Tail returns up to maxBytes from the end of the journal, aligned to the
// first whole line so the agent never sees a clipped sentence.
func (j *Journal) Tail(maxBytes int) (string, error) {
	content, err := j.Read()
	if err != nil {
		return "", err
	}
	if maxBytes <= 0 || len(content) <= maxBytes {
		return content, nil
	}
	cut := content[len(content)-maxBytes:]
	if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx+1 < len(cut) {
		cut = cut[idx+1:]
	}
	return cut, nil
}

// ExtractPatterns returns the patterns section, heading included, exactly as
// stored. Missing file or missing section yields the empty string.
func (j *Journal) ExtractPatterns() (string, error) {
	content, err := j.Read()
	if err != nil {
		return "", err
	}
	start := strings.Index(content, patternsHeading)
	if start < 0 {
		return "", nil
	}
	rest := content[start:]
	if end := strings.Index(rest[len(patternsHeading):], "\n## "); end >= 0 {
		return rest[:len(patternsHeading)+end+1], nil
	}
	return rest, nil
}

// Reset replaces the journal with the standard header plus the preserved
// patterns section. An empty preserving string falls back to the skeleton
// patterns section.
func (j *Journal) Reset(preserving string) error {
	patterns := preserving
	if patterns == "" {
		patterns = emptyPatterns
	}
	if !strings.HasSuffix(patterns, "\n") {
		patterns += "\n"
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	doc := header + patterns + iterationsHeading + "\n"
	if err := os.WriteFile(j.path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("reset journal: %w", err)
	}

	log.Debug().Str("path", j.path).Msg("journal reset")
	return nil
}

func formatEntry(e Entry) string {
	var b strings.Builder
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	fmt.Fprintf(&b, "\n### %s - %s (%s)\n\n", ts, e.Title, e.ItemID)
	if e.Summary != "" {
		b.WriteString(strings.TrimRight(e.Summary, "\n"))
		b.WriteString("\n")
	}
	if len(e.Files) > 0 {
		b.WriteString("\nFiles touched:\n")
		for _, f := range e.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
