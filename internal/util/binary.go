// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name.
// Search order:
//  1. configured path (from the config file; an unusable value is an error,
//     not a fallthrough, so misconfiguration surfaces at startup)
//  2. environment variable override (if envVar is non-empty and set)
//  3. ./name (current directory, useful for development)
//  4. name on PATH (via exec.LookPath)
//
// Returns the path to the binary or an error if not found.
func FindBinary(name, configured, envVar string) (string, error) {
	if configured != "" {
		// LookPath checks the file directly when the value contains a
		// separator and searches PATH for bare names.
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("configured %s binary %q: %w", name, configured, err)
		}
		return path, nil
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	if localPath := "./" + name; isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
