// Package table writes feature rows as CSV or Parquet.
package table

import (
	"fmt"
	"strings"

	"github.com/offlinefirst/mousedynamics/pkg/features"
)

// Format identifies an on-disk table encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Header lists the output columns in order, without the optional label.
var Header = []string{
	"Type_of_action",
	"Travelled_distance_in_pixels",
	"Elapsed_time",
	"Direction_of_movement",
	"Straightness",
	"Num_points",
	"Sum_of_angles",
	"Mean_curv",
	"Sd_curv",
	"Max_curv",
	"Min_curv",
	"Mean_omega",
	"Sd_omega",
	"Max_omega",
	"Min_omega",
}

// LabelColumn is appended to Header when a label table is configured.
const LabelColumn = "label"

// Writer receives rows in output order. label is nil for unlabelled tables.
type Writer interface {
	Write(row features.Row, label *int) error
	Close() error
}

// ParseFormat normalises a format name.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported table format %q", value)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Create opens path for writing in the given format.
func Create(path string, format Format, withLabel bool) (Writer, error) {
	switch format {
	case FormatCSV:
		return CreateCSV(path, withLabel)
	case FormatParquet:
		return CreateParquet(path, withLabel)
	default:
		return nil, fmt.Errorf("unsupported table format %q", format)
	}
}
