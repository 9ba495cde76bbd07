// Package project locates the project a command runs in.
package project

import (
	"os"
	"path/filepath"
)

// DefaultMarkers are the directories that identify a project root.
var DefaultMarkers = []string{"memory", ".retro"}

// DetectRoot walks up from startDir (cwd when empty) to the first directory
// containing one of markers as a subdirectory. It returns "" when none does.
func DetectRoot(startDir string, markers ...string) string {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return ""
		}
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		for _, m := range markers {
			if info, err := os.Stat(filepath.Join(dir, m)); err == nil && info.IsDir() {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// RootOrCwd returns the detected root, falling back to startDir itself.
func RootOrCwd(startDir string) string {
	if root := DetectRoot(startDir); root != "" {
		return root
	}
	if startDir == "" {
		cwd, _ := os.Getwd()
		return cwd
	}
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return startDir
	}
	return abs
}

// Resolve joins p onto root unless p is already absolute.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
