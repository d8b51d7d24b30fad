// Package labels resolves per-session ground-truth labels from a label table.
package labels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnresolved is returned when a session id has no entry in the label table.
var ErrUnresolved = errors.New("unresolved label")

const (
	columnFilename = "filename"
	columnLabel    = "is_illegal"
)

// Resolver maps session ids to integer labels.
type Resolver struct {
	labels map[string]int
}

// SessionID returns the base name of path up to its first '.'.
func SessionID(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Load reads a label table from disk.
func Load(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open label table: %w", err)
	}
	defer f.Close()
	r, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Read parses a CSV label table whose header names the filename and
// is_illegal columns. Filenames are reduced to session ids.
func Read(r io.Reader) (*Resolver, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("label table is empty")
		}
		return nil, fmt.Errorf("read label header: %w", err)
	}
	nameCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case columnFilename:
			nameCol = i
		case columnLabel:
			labelCol = i
		}
	}
	if nameCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("label table header must contain %q and %q", columnFilename, columnLabel)
	}

	res := &Resolver{labels: make(map[string]int)}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read label row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if nameCol >= len(record) || labelCol >= len(record) {
			return nil, fmt.Errorf("line %d: short row", line)
		}
		name := strings.TrimSpace(record[nameCol])
		if name == "" {
			continue
		}
		label, err := parseLabel(record[labelCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res.labels[SessionID(name)] = label
	}
}

func parseLabel(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid label %q", raw)
	}
	return int(f), nil
}

// Lookup returns the label for a session id, or ErrUnresolved.
func (r *Resolver) Lookup(sessionID string) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnresolved, sessionID)
	}
	label, ok := r.labels[sessionID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnresolved, sessionID)
	}
	return label, nil
}

// Len reports the number of labelled sessions.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.labels)
}
