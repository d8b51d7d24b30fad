package events

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Session file column names.
const (
	ColumnRecordTime = "record timestamp"
	ColumnClientTime = "client timestamp"
	ColumnButton     = "button"
	ColumnState      = "state"
	ColumnX          = "x"
	ColumnY          = "y"
)

// Header is the column order written by Writer.
var Header = []string{ColumnRecordTime, ColumnClientTime, ColumnButton, ColumnState, ColumnX, ColumnY}

type columnIndex struct {
	record int
	client int
	button int
	state  int
	x      int
	y      int
}

// Reader decodes raw events from a session CSV with a header row.
// Columns are located by name so extra or reordered columns are tolerated.
type Reader struct {
	csv *csv.Reader
	idx columnIndex
}

// NewReader consumes the header row and validates that required columns exist.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrMalformedInput)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedInput, err)
	}

	idx := columnIndex{record: -1, client: -1, button: -1, state: -1, x: -1, y: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case ColumnRecordTime:
			idx.record = i
		case ColumnClientTime:
			idx.client = i
		case ColumnButton:
			idx.button = i
		case ColumnState:
			idx.state = i
		case ColumnX:
			idx.x = i
		case ColumnY:
			idx.y = i
		}
	}

	required := []struct {
		name string
		pos  int
	}{
		{ColumnClientTime, idx.client},
		{ColumnButton, idx.button},
		{ColumnState, idx.state},
		{ColumnX, idx.x},
		{ColumnY, idx.y},
	}
	for _, col := range required {
		if col.pos < 0 {
			return nil, fmt.Errorf("%w: header missing column %q", ErrMalformedInput, col.name)
		}
	}

	return &Reader{csv: cr, idx: idx}, nil
}

// Read returns the next event or io.EOF once the input is exhausted.
func (r *Reader) Read() (RawEvent, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RawEvent{}, io.EOF
		}
		return RawEvent{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	line, _ := r.csv.FieldPos(0)

	var ev RawEvent
	if r.idx.record >= 0 {
		// The record timestamp is informational; blank or non-numeric values decode as zero.
		if v, err := parseField(record, r.idx.record); err == nil {
			ev.RecordTime = v
		}
	}
	if ev.ClientTime, err = parseField(record, r.idx.client); err != nil {
		return RawEvent{}, malformed(line, ColumnClientTime, err)
	}
	if ev.X, err = parseField(record, r.idx.x); err != nil {
		return RawEvent{}, malformed(line, ColumnX, err)
	}
	if ev.Y, err = parseField(record, r.idx.y); err != nil {
		return RawEvent{}, malformed(line, ColumnY, err)
	}
	ev.Button = Button(strings.TrimSpace(field(record, r.idx.button)))
	ev.State = State(strings.TrimSpace(field(record, r.idx.state)))
	return ev, nil
}

// ReadSession decodes an entire session. Any malformed row fails the whole session.
func ReadSession(r io.Reader) ([]RawEvent, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var out []RawEvent
	for {
		ev, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
}

func field(record []string, pos int) string {
	if pos < 0 || pos >= len(record) {
		return ""
	}
	return record[pos]
}

func parseField(record []string, pos int) (float64, error) {
	raw := strings.TrimSpace(field(record, pos))
	if raw == "" {
		return 0, errors.New("missing value")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

func malformed(line int, column string, err error) error {
	return fmt.Errorf("%w: line %d: column %q: %v", ErrMalformedInput, line, column, err)
}

// Writer encodes raw events as session CSV rows.
type Writer struct {
	csv         *csv.Writer
	wroteHeader bool
}

// NewWriter wraps w. The header is emitted before the first row or on Flush.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Write appends a single event.
func (w *Writer) Write(ev RawEvent) error {
	if err := w.header(); err != nil {
		return err
	}
	row := []string{
		formatFloat(ev.RecordTime),
		formatFloat(ev.ClientTime),
		string(ev.Button),
		string(ev.State),
		formatFloat(ev.X),
		formatFloat(ev.Y),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write event row: %w", err)
	}
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.header(); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *Writer) header() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	if err := w.csv.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
