// Package testutil provides environment helpers for the E2E tests, which
// drive the built binary and cannot import internal/. Stdlib only.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// A missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireEnv returns the value of name, exiting the process with a hint
// when it is unset. E2E runs must never fall back to a personal account.
func RequireEnv(name, hint string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", name)

		if hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}

		os.Exit(1)
	}

	return v
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteTemp writes data to a new file in dir and returns its path.
// Crashes on failure because tests cannot proceed without the file.
func WriteTemp(dir, pattern string, data []byte) string {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: creating temp file: %v\n", err)
		os.Exit(1)
	}

	if _, err := f.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", f.Name(), err)
		os.Exit(1)
	}

	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: closing %s: %v\n", f.Name(), err)
		os.Exit(1)
	}

	return f.Name()
}
