// Package dataset discovers session files and extracts their features in parallel.
package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/offlinefirst/mousedynamics/pkg/labels"
)

// Session is one raw event file.
type Session struct {
	ID   string
	Path string
}

// Discover walks root recursively and returns the regular files whose base
// name starts with prefix, ordered by session id then path. Hidden files are
// ignored.
func Discover(root, prefix string) ([]Session, error) {
	var sessions []Session
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(name, ".") {
			return nil
		}
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		sessions = append(sessions, Session{ID: labels.SessionID(path), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk sessions directory: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ID != sessions[j].ID {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].Path < sessions[j].Path
	})
	return sessions, nil
}
