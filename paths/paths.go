// Package paths provides centralized path resolution for the SDK's state
// directory (log files).
//
// The XDG Base Directory Specification is supported:
//
//   - State (XDG_STATE_HOME): logs/ — transient log files
//
// Resolution order:
//  1. If ~/.mlld-go/ exists → use legacy flat layout (all paths under ~/.mlld-go/)
//  2. If XDG_STATE_HOME is set → use the XDG layout
//  3. Fresh install, no XDG vars → default to ~/.mlld-go/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	stateDir string
	legacy   bool
}

// resolve computes the path layout once and caches it.
func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	legacyDir := filepath.Join(home, ".mlld-go")

	// 1. If ~/.mlld-go/ exists, use legacy layout
	if info, err := os.Stat(legacyDir); err == nil && info.IsDir() {
		resolved = &resolvedPaths{stateDir: legacyDir, legacy: true}
		return resolved, nil
	}

	// 2. Check the XDG env var
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		resolved = &resolvedPaths{
			stateDir: filepath.Join(xdgState, "mlld-go"),
			legacy:   false,
		}
		return resolved, nil
	}

	// 3. Fresh install, no XDG — default to legacy
	resolved = &resolvedPaths{stateDir: legacyDir, legacy: true}
	return resolved, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// IsLegacyLayout returns true if using the ~/.mlld-go/ flat layout.
func IsLegacyLayout() bool {
	r, err := resolve()
	if err != nil {
		return true // assume legacy on error
	}
	return r.legacy
}

// Reset clears the cached path resolution. This is intended for testing only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
