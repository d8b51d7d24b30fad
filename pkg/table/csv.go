package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/offlinefirst/mousedynamics/pkg/features"
)

// CSVWriter encodes rows with a header line.
type CSVWriter struct {
	csv       *csv.Writer
	closer    io.Closer
	withLabel bool
	header    bool
}

// NewCSVWriter writes to w. Close flushes but does not close w.
func NewCSVWriter(w io.Writer, withLabel bool) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w), withLabel: withLabel}
}

// CreateCSV truncates path and returns a writer that owns the file.
func CreateCSV(path string, withLabel bool) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create feature table: %w", err)
	}
	w := NewCSVWriter(f, withLabel)
	w.closer = f
	return w, nil
}

func (w *CSVWriter) writeHeader() error {
	if w.header {
		return nil
	}
	w.header = true
	cols := append([]string(nil), Header...)
	if w.withLabel {
		cols = append(cols, LabelColumn)
	}
	return w.csv.Write(cols)
}

// Write appends one row.
func (w *CSVWriter) Write(row features.Row, label *int) error {
	if err := w.writeHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := []string{
		string(row.Type),
		formatFloat(row.Distance),
		formatFloat(row.ElapsedTime),
		formatFloat(row.Direction),
		formatFloat(row.Straightness),
		strconv.Itoa(row.NumPoints),
		formatFloat(row.SumOfAngles),
		formatFloat(row.Curvature.Mean),
		formatFloat(row.Curvature.SD),
		formatFloat(row.Curvature.Max),
		formatFloat(row.Curvature.Min),
		formatFloat(row.Omega.Mean),
		formatFloat(row.Omega.SD),
		formatFloat(row.Omega.Max),
		formatFloat(row.Omega.Min),
	}
	if w.withLabel {
		if label == nil {
			record = append(record, "")
		} else {
			record = append(record, strconv.Itoa(*label))
		}
	}
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Close writes the header if no rows were written, then flushes.
func (w *CSVWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
