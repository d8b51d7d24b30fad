package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Options controls tap behaviour.
type Options struct {
	Clock  func() time.Time
	Source Source
	Gate   Gate
	OnKey  func(key string)
}

// Tap records pointer samples to a session CSV while its gate is open.
type Tap struct {
	clock  func() time.Time
	source Source
	gate   Gate
	onKey  func(key string)
}

// Source emits pointer and key samples that should be observed by the tap.
type Source interface {
	Stream(ctx context.Context, emit func(Sample) error) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Sample) error) error

// Stream calls the underlying function.
func (f SourceFunc) Stream(ctx context.Context, emit func(Sample) error) error {
	return f(ctx, emit)
}

// Gate reports whether pointer samples should currently be recorded.
type Gate interface {
	Listening() bool
}

type openGate struct{}

func (openGate) Listening() bool { return true }

// Result reports the file produced by a tap capture session.
type Result struct {
	Path         string
	EventCount   int
	DroppedCount int
	KeyCount     int
	CaptureStart time.Time
	CaptureEnd   time.Time
}

// NewTap validates options and constructs a tap instance.
func NewTap(opts Options) (*Tap, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	source := opts.Source
	if source == nil {
		source = defaultSource(clock)
	}
	gate := opts.Gate
	if gate == nil {
		gate = openGate{}
	}
	return &Tap{
		clock:  clock,
		source: source,
		gate:   gate,
		onKey:  opts.OnKey,
	}, nil
}

// Capture streams samples into destPath until the source finishes or ctx is done.
// Rows written before cancellation are flushed; cancellation is not reported as an error.
func (t *Tap) Capture(ctx context.Context, destPath string) (Result, error) {
	if destPath == "" {
		return Result{}, errors.New("destination path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure destination: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("create session file: %w", err)
	}
	defer file.Close()

	writer := NewWriter(file)
	result := Result{Path: destPath, CaptureStart: t.clock().UTC()}

	streamErr := t.source.Stream(ctx, func(sample Sample) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch sample.Kind {
		case SampleKey:
			result.KeyCount++
			if t.onKey != nil {
				t.onKey(sample.Key)
			}
		case SamplePointer:
			if !t.gate.Listening() {
				result.DroppedCount++
				return nil
			}
			if err := writer.Write(sample.Event); err != nil {
				return err
			}
			result.EventCount++
		}
		return nil
	})

	if err := writer.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush session file: %w", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("close session file: %w", err)
	}
	result.CaptureEnd = t.clock().UTC()

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) {
			return result, nil
		}
		return Result{}, fmt.Errorf("stream events: %w", streamErr)
	}
	return result, nil
}
