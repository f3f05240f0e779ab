package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gyre-dev/gyre/internal/journal"
	"github.com/gyre-dev/gyre/internal/ledger"
)

func setupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), ".gyre")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	j := journal.New(filepath.Join(dataDir, journal.FileName))
	return NewManager(dataDir, j), dataDir
}

func writeLiveFiles(t *testing.T, m *Manager, dataDir string) []byte {
	t.Helper()
	l := &ledger.Ledger{
		Project:    "demo",
		BranchName: "feat/login",
		Items: []ledger.WorkItem{
			{ID: "a", Title: "one", AcceptanceCriteria: []string{"done"}, Priority: 1},
		},
	}
	if err := ledger.Save(filepath.Join(dataDir, ledger.FileName), l); err != nil {
		t.Fatal(err)
	}
	if err := m.Journal.Reset(""); err != nil {
		t.Fatal(err)
	}
	err := m.Journal.Append(journal.Entry{
		Timestamp: time.Now(),
		ItemID:    "a",
		Title:     "one",
		Summary:   "implemented the thing",
	})
	if err != nil {
		t.Fatal(err)
	}

	ledgerBytes, err := os.ReadFile(filepath.Join(dataDir, ledger.FileName))
	if err != nil {
		t.Fatal(err)
	}
	return ledgerBytes
}

func TestCheckAndArchiveFirstRun(t *testing.T) {
	m, dataDir := setupManager(t)

	st, dir, err := m.CheckAndArchive(State{}, "main")
	if err != nil {
		t.Fatalf("CheckAndArchive error: %v", err)
	}
	if dir != "" {
		t.Errorf("first run must not archive, got %q", dir)
	}
	if st.ContextID != "main" {
		t.Errorf("expected recorded context main, got %q", st.ContextID)
	}
	if entries, _ := os.ReadDir(filepath.Join(dataDir, DirName)); len(entries) != 0 {
		t.Error("no archive directory expected on first run")
	}
}

func TestCheckAndArchiveUnchanged(t *testing.T) {
	m, _ := setupManager(t)
	prev := State{ContextID: "main", UpdatedAt: time.Now().Add(-time.Hour)}

	st, dir, err := m.CheckAndArchive(prev, "main")
	if err != nil {
		t.Fatal(err)
	}
	if dir != "" {
		t.Errorf("unchanged context must not archive, got %q", dir)
	}
	if st != prev {
		t.Errorf("state must be returned untouched, got %+v", st)
	}
}

func TestCheckAndArchiveChanged(t *testing.T) {
	m, dataDir := setupManager(t)
	liveLedger := writeLiveFiles(t, m, dataDir)

	// Give the journal a distinctive patterns section first.
	content, err := m.Journal.Read()
	if err != nil {
		t.Fatal(err)
	}
	content = strings.Replace(content,
		"(recurring approaches worth repeating go here)",
		"- commit small, commit often", 1)
	if err := os.WriteFile(m.Journal.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	patternsBefore, err := m.Journal.ExtractPatterns()
	if err != nil {
		t.Fatal(err)
	}

	st, dir, err := m.CheckAndArchive(State{ContextID: "main", UpdatedAt: time.Now()}, "feat/login")
	if err != nil {
		t.Fatalf("CheckAndArchive error: %v", err)
	}
	if dir == "" {
		t.Fatal("expected an archive directory")
	}
	if st.ContextID != "feat/login" {
		t.Errorf("expected new context recorded, got %q", st.ContextID)
	}

	t.Run("archived ledger is unmodified", func(t *testing.T) {
		archived, err := os.ReadFile(filepath.Join(dir, ledger.FileName))
		if err != nil {
			t.Fatalf("archived ledger missing: %v", err)
		}
		if string(archived) != string(liveLedger) {
			t.Error("archived ledger differs from the original")
		}
	})

	t.Run("live ledger untouched", func(t *testing.T) {
		live, err := os.ReadFile(filepath.Join(dataDir, ledger.FileName))
		if err != nil {
			t.Fatalf("live ledger missing: %v", err)
		}
		if string(live) != string(liveLedger) {
			t.Error("live ledger was modified by archival")
		}
	})

	t.Run("journal snapshot exists", func(t *testing.T) {
		archived, err := os.ReadFile(filepath.Join(dir, journal.FileName))
		if err != nil {
			t.Fatalf("archived journal missing: %v", err)
		}
		if !strings.Contains(string(archived), "implemented the thing") {
			t.Error("archived journal lost the old entries")
		}
	})

	t.Run("journal reset preserves patterns byte for byte", func(t *testing.T) {
		patternsAfter, err := m.Journal.ExtractPatterns()
		if err != nil {
			t.Fatal(err)
		}
		if patternsAfter != patternsBefore {
			t.Errorf("patterns changed:\nbefore: %q\nafter:  %q", patternsBefore, patternsAfter)
		}
		fresh, _ := m.Journal.Read()
		if strings.Contains(fresh, "implemented the thing") {
			t.Error("journal reset must drop old entries")
		}
	})

	t.Run("archive directory named by date and prior context", func(t *testing.T) {
		name := filepath.Base(dir)
		if !strings.HasSuffix(name, "-main") {
			t.Errorf("expected slug of prior context in %q", name)
		}
	})
}

func TestCheckAndArchiveChangedNothingToArchive(t *testing.T) {
	m, dataDir := setupManager(t)

	st, dir, err := m.CheckAndArchive(State{ContextID: "main", UpdatedAt: time.Now()}, "other")
	if err != nil {
		t.Fatal(err)
	}
	if dir != "" {
		t.Errorf("nothing to archive, got directory %q", dir)
	}
	if st.ContextID != "other" {
		t.Errorf("state must still advance, got %q", st.ContextID)
	}
	if entries, _ := os.ReadDir(filepath.Join(dataDir, DirName)); len(entries) != 0 {
		t.Error("no archive directory expected")
	}
}

func TestCheckAndArchiveCollisionSuffix(t *testing.T) {
	m, dataDir := setupManager(t)
	writeLiveFiles(t, m, dataDir)

	st, first, err := m.CheckAndArchive(State{ContextID: "main", UpdatedAt: time.Now()}, "next")
	if err != nil || first == "" {
		t.Fatalf("first archive failed: dir=%q err=%v", first, err)
	}

	// Re-create the live files and flip back within the same second.
	writeLiveFiles(t, m, dataDir)
	_, second, err := m.CheckAndArchive(State{ContextID: "main", UpdatedAt: st.UpdatedAt}, "next2")
	if err != nil || second == "" {
		t.Fatalf("second archive failed: dir=%q err=%v", second, err)
	}
	if first == second {
		t.Error("expected distinct archive directories")
	}
}

func TestStateRoundTrip(t *testing.T) {
	dataDir := t.TempDir()

	if st := LoadState(dataDir); st.ContextID != "" {
		t.Errorf("expected zero state, got %+v", st)
	}

	want := State{ContextID: "feat/login", UpdatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	if err := SaveState(dataDir, want); err != nil {
		t.Fatal(err)
	}

	got := LoadState(dataDir)
	if got.ContextID != want.ContextID || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestLoadStateCorrupt(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, StateFileName), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if st := LoadState(dataDir); st.ContextID != "" {
		t.Errorf("corrupt state must read as zero, got %+v", st)
	}
}
