package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// runGit is a test helper that fails the test on git errors.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func initRepo(t *testing.T) string {
	t.Helper()
	if !Available() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
	return dir
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-m", message)
}

func TestIsRepo(t *testing.T) {
	ctx := context.Background()

	dir := initRepo(t)
	if !IsRepo(ctx, dir) {
		t.Error("expected IsRepo true inside a repository")
	}

	plain := t.TempDir()
	if IsRepo(ctx, plain) {
		t.Error("expected IsRepo false outside a repository")
	}
}

func TestCurrentBranch(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "a", "initial")

	branch, err := CurrentBranch(ctx, dir)
	if err != nil {
		t.Fatalf("CurrentBranch error: %v", err)
	}
	if branch == "" {
		t.Error("expected a branch name")
	}

	runGit(t, dir, "checkout", "-b", "feat/login")
	branch, err = CurrentBranch(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if branch != "feat/login" {
		t.Errorf("expected feat/login, got %q", branch)
	}
}

func TestCurrentBranchDetached(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "a", "initial")
	runGit(t, dir, "checkout", "--detach", "HEAD")

	if _, err := CurrentBranch(ctx, dir); err == nil {
		t.Error("expected error on detached HEAD")
	}
}

func TestChangedFiles(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "a", "initial")

	t.Run("clean tree", func(t *testing.T) {
		files, err := ChangedFiles(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 0 {
			t.Errorf("expected no changes, got %v", files)
		}
	})

	t.Run("modified and untracked", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644); err != nil {
			t.Fatal(err)
		}

		files, err := ChangedFiles(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		got := strings.Join(files, ",")
		if !strings.Contains(got, "a.txt") || !strings.Contains(got, "b.txt") {
			t.Errorf("expected a.txt and b.txt, got %v", files)
		}
	})
}

func TestHasChanges(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "a", "initial")

	dirty, err := HasChanges(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("expected clean tree")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirty, err = HasChanges(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !dirty {
		t.Error("expected dirty tree")
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "a", "initial")

	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := Commit(ctx, dir, "add b.txt")
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if len(hash) < 7 {
		t.Errorf("expected a short hash, got %q", hash)
	}

	dirty, err := HasChanges(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("expected clean tree after commit")
	}

	if log := runGit(t, dir, "log", "--oneline", "-1"); !strings.Contains(log, "add b.txt") {
		t.Errorf("expected commit message in log, got %q", log)
	}
}

func TestRecentHistory(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	t.Run("empty repository", func(t *testing.T) {
		history, err := RecentHistory(ctx, dir, 5)
		if err != nil {
			t.Fatalf("expected no error for empty repo, got %v", err)
		}
		if history != "" {
			t.Errorf("expected empty history, got %q", history)
		}
	})

	t.Run("limits line count", func(t *testing.T) {
		for _, msg := range []string{"first", "second", "third"} {
			commitFile(t, dir, msg+".txt", msg, msg)
		}

		history, err := RecentHistory(ctx, dir, 2)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(history, "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d: %q", len(lines), history)
		}
		if !strings.Contains(lines[0], "third") {
			t.Errorf("expected newest first, got %q", lines[0])
		}
	})
}
