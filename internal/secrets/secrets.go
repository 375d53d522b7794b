// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads session values from a directory of plain-text files.
// Each file represents one value: the filename is the key and the trimmed
// file contents are the value. Session credentials of the form
// "key={credentials}" are bound from these values at dispatch time.
//
// Values in dir/<owner>/ override the shared values at the top of dir.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	return load(dir, slog.Default())
}

func load(dir string, logger *slog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "err", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Dir is a session source backed by a secrets directory.
type Dir struct {
	Path   string
	Logger *slog.Logger
}

// Session returns the shared values overlaid with owner's values. An owner
// name that would escape the directory gets only the shared values.
func (d Dir) Session(_ context.Context, owner string) (map[string]string, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session, err := load(d.Path, logger)
	if err != nil {
		return nil, err
	}
	if owner == "" || owner != filepath.Base(owner) || strings.HasPrefix(owner, ".") {
		return session, nil
	}
	own, err := load(filepath.Join(d.Path, owner), logger)
	if err != nil {
		return nil, err
	}
	for k, v := range own {
		session[k] = v
	}
	return session, nil
}
