package cifra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox confines file operations to a single directory tree. Every path
// handed to the engine goes through Resolve before any read or write; the
// check works on the fully resolved path, not the literal string, so both
// lexical ("../") and symlink escapes are caught.
//
// The zero value is not usable; construct with NewSandbox.
type Sandbox struct {
	root string // canonical absolute root, symlinks resolved
}

// NewSandbox creates the sandbox rooted at root, creating the directory if
// needed. The root is canonicalized once here; all later checks compare
// against this resolved form.
func NewSandbox(root string) (*Sandbox, error) {
	if root == "" {
		return nil, fmt.Errorf("sandbox root cannot be empty")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root %s: %w", root, err)
	}

	if err = os.MkdirAll(absRoot, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root %s: %w", absRoot, err)
	}

	canonical, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize sandbox root %s: %w", absRoot, err)
	}

	return &Sandbox{root: canonical}, nil
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve canonicalizes path and verifies it lies inside the sandbox.
// Returns the canonical absolute path, or a *SandboxViolationError.
//
// Two layers of defense:
//  1. A lexical check on the cleaned absolute path rejects ".." escapes
//     before the filesystem is consulted at all.
//  2. The deepest existing ancestor is resolved through the real
//     filesystem (filepath.EvalSymlinks), so a symlink inside the sandbox
//     pointing outside is caught even when the final component does not
//     exist yet.
//
// Pure check: Resolve never creates, opens, or modifies anything.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", &SandboxViolationError{Path: path, Root: s.root}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	// Lexical gate. filepath.Abs cleans the path, so "root/../../etc" has
	// already collapsed to "/etc" here and fails containment.
	if !isWithin(s.root, absPath) {
		return "", &SandboxViolationError{Path: path, Root: s.root}
	}

	resolved, err := resolveExisting(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize path %s: %w", path, err)
	}

	if !isWithin(s.root, resolved) {
		return "", &SandboxViolationError{Path: path, Root: s.root}
	}

	return resolved, nil
}

// isWithin reports whether target equals root or is a descendant of it.
// Both arguments must already be absolute and cleaned.
func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveExisting canonicalizes path through the real filesystem. Because
// output files may not exist yet, symlinks are resolved on the deepest
// existing ancestor and the non-existent suffix is re-appended lexically.
func resolveExisting(absPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absPath)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := absPath
	var suffix []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			// Hit the filesystem root without finding anything; keep the
			// cleaned path as-is.
			return absPath, nil
		}
		suffix = append([]string{filepath.Base(dir)}, suffix...)
		dir = parent

		resolved, err = filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
}
