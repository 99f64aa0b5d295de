package cifra

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()

	sandbox, err := NewSandbox(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	return sandbox
}

func TestSandboxAcceptsInsidePaths(t *testing.T) {
	sandbox := newTestSandbox(t)

	cases := []string{
		sandbox.Root(),
		filepath.Join(sandbox.Root(), "input", "a.txt"),
		filepath.Join(sandbox.Root(), "output", "nested", "deep", "b.enc"),
		filepath.Join(sandbox.Root(), "input", "..", "output", "c.txt"), // stays inside after cleaning
	}

	for _, path := range cases {
		resolved, err := sandbox.Resolve(path)
		if err != nil {
			t.Errorf("Resolve(%s) failed: %v", path, err)
			continue
		}
		if !filepath.IsAbs(resolved) {
			t.Errorf("Resolve(%s) returned non-absolute path %s", path, resolved)
		}
	}
}

func TestSandboxRejectsTraversal(t *testing.T) {
	sandbox := newTestSandbox(t)

	cases := []string{
		filepath.Join(sandbox.Root(), ".."),
		filepath.Join(sandbox.Root(), "..", "sibling", "file.txt"),
		filepath.Join(sandbox.Root(), "..", "..", "etc", "passwd"),
		filepath.Join(sandbox.Root(), "input", "..", "..", "escape.txt"),
		"/etc/passwd",
		"",
	}

	for _, path := range cases {
		if _, err := sandbox.Resolve(path); !IsSandboxViolation(err) {
			t.Errorf("Resolve(%q) = %v, want sandbox violation", path, err)
		}
	}
}

func TestSandboxRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	sandbox := newTestSandbox(t)
	outside := t.TempDir()

	// Directory symlink pointing out of the sandbox.
	dirLink := filepath.Join(sandbox.Root(), "dirlink")
	if err := os.Symlink(outside, dirLink); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	if _, err := sandbox.Resolve(filepath.Join(dirLink, "victim.txt")); !IsSandboxViolation(err) {
		t.Errorf("path through escaping directory symlink was not rejected: %v", err)
	}

	// File symlink pointing at a file outside.
	victim := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(victim, []byte("secret"), 0600); err != nil {
		t.Fatalf("failed to write victim file: %v", err)
	}
	fileLink := filepath.Join(sandbox.Root(), "filelink")
	if err := os.Symlink(victim, fileLink); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	if _, err := sandbox.Resolve(fileLink); !IsSandboxViolation(err) {
		t.Errorf("escaping file symlink was not rejected: %v", err)
	}
}

func TestSandboxAcceptsInternalSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	sandbox := newTestSandbox(t)

	target := filepath.Join(sandbox.Root(), "real.txt")
	if err := os.WriteFile(target, []byte("data"), 0600); err != nil {
		t.Fatalf("failed to write target: %v", err)
	}

	link := filepath.Join(sandbox.Root(), "alias.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	resolved, err := sandbox.Resolve(link)
	if err != nil {
		t.Fatalf("internal symlink rejected: %v", err)
	}
	if resolved != target {
		t.Errorf("Resolve(%s) = %s, want %s", link, resolved, target)
	}
}

func TestSandboxResolvesNonexistentOutput(t *testing.T) {
	sandbox := newTestSandbox(t)

	// Output paths routinely do not exist yet; they must still resolve.
	path := filepath.Join(sandbox.Root(), "output", "not", "yet", "created.enc")
	resolved, err := sandbox.Resolve(path)
	if err != nil {
		t.Fatalf("nonexistent in-sandbox path rejected: %v", err)
	}
	if resolved != path {
		t.Errorf("Resolve(%s) = %s", path, resolved)
	}
}

func TestSandboxRootCanonicalized(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	base := t.TempDir()
	real := filepath.Join(base, "real-root")
	if err := os.Mkdir(real, 0700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	link := filepath.Join(base, "link-root")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}

	canonicalReal, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}

	sandbox, err := NewSandbox(link)
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	if sandbox.Root() != canonicalReal {
		t.Errorf("root = %s, want canonical %s", sandbox.Root(), canonicalReal)
	}

	// Paths under the canonical spelling of the root resolve inside it.
	if _, err = sandbox.Resolve(filepath.Join(canonicalReal, "a.txt")); err != nil {
		t.Errorf("path under canonical root rejected: %v", err)
	}
}

func TestNewSandboxEmptyRoot(t *testing.T) {
	if _, err := NewSandbox(""); err == nil {
		t.Error("expected error for empty sandbox root")
	}
}
