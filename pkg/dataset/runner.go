package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/features"
	"github.com/offlinefirst/mousedynamics/pkg/labels"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
	"github.com/offlinefirst/mousedynamics/pkg/table"
)

// Options controls a batch extraction.
type Options struct {
	Workers  int
	Labels   *labels.Resolver
	Features features.Options
	Logger   *slog.Logger
}

// Outcome is the result for one session. Rows is set only when State is completed.
type Outcome struct {
	Session Session
	State   string
	Rows    []features.Row
	Label   *int
	Err     error
}

// Status converts the outcome into its manifest entry.
func (o Outcome) Status() runmanifest.SessionStatus {
	s := runmanifest.SessionStatus{
		ID:    o.Session.ID,
		Path:  o.Session.Path,
		State: o.State,
		Rows:  len(o.Rows),
		Label: o.Label,
	}
	if o.Err != nil {
		s.Message = o.Err.Error()
	}
	return s
}

// Process extracts every session with at most opts.Workers in flight. A
// failing session never stops the others; its outcome records the error.
// Sessions not yet started when ctx is done are skipped and Process returns
// ctx.Err() alongside the outcomes gathered so far.
func Process(ctx context.Context, sessions []Session, opts Options) ([]Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]Outcome, len(sessions))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, sess := range sessions {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Session: sess, State: runmanifest.SessionSkipped, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Session: sess, State: runmanifest.SessionSkipped, Err: err}
				return nil
			}
			outcomes[i] = processOne(sess, opts, logger)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, ctx.Err()
}

func processOne(sess Session, opts Options, logger *slog.Logger) Outcome {
	out := Outcome{Session: sess}
	log := logger.With("session", sess.ID, "path", sess.Path)

	if opts.Labels != nil {
		label, err := opts.Labels.Lookup(sess.ID)
		if err != nil {
			out.State = runmanifest.SessionSkipped
			out.Err = err
			log.Warn("session skipped", "condition", "unresolved label")
			return out
		}
		out.Label = &label
	}

	evs, err := readSession(sess.Path)
	if err != nil {
		out.State = runmanifest.SessionFailed
		out.Err = err
		log.Error("session failed", "condition", condition(err), "error", err)
		return out
	}

	rows, err := features.Extract(evs, opts.Features)
	if err != nil {
		out.State = runmanifest.SessionFailed
		out.Err = err
		log.Error("session failed", "condition", condition(err), "error", err)
		return out
	}

	out.State = runmanifest.SessionCompleted
	out.Rows = rows
	log.Debug("session extracted", "events", len(evs), "rows", len(rows))
	return out
}

func readSession(path string) ([]events.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()
	return events.ReadSession(f)
}

func condition(err error) string {
	switch {
	case errors.Is(err, events.ErrMalformedInput):
		return "malformed input"
	case errors.Is(err, labels.ErrUnresolved):
		return "unresolved label"
	default:
		return "io error"
	}
}

// WriteTable writes the rows of completed outcomes, in order, and returns the row count.
func WriteTable(w table.Writer, outcomes []Outcome) (int, error) {
	n := 0
	for _, o := range outcomes {
		if o.State != runmanifest.SessionCompleted {
			continue
		}
		for _, row := range o.Rows {
			if err := w.Write(row, o.Label); err != nil {
				return n, fmt.Errorf("session %s: %w", o.Session.ID, err)
			}
			n++
		}
	}
	return n, nil
}
