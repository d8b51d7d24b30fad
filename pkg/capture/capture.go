package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
)

// Termination reasons reported in Summary.
const (
	TerminationSourceEnded = "source_ended"
	TerminationDuration    = "duration_elapsed"
	TerminationCancelled   = "cancelled"
	TerminationKilled      = "killed"
)

// Options controls capture orchestration.
type Options struct {
	Config  config.Config
	Layout  runmanifest.Layout
	Logger  *slog.Logger
	Clock   func() time.Time
	Control *Controller
	Source  events.Source
}

// Summary reports what a capture run recorded.
type Summary struct {
	Events      events.Result
	Timeline    []runmanifest.ControllerTimelineEntry
	Termination string
}

// OutputPath resolves where the raw session is written.
func OutputPath(cfg config.Config, layout runmanifest.Layout) string {
	if cfg.Capture.OutputFile != "" {
		return cfg.Capture.OutputFile
	}
	return layout.SessionPath()
}

// Run records pointer events to a session file until the source ends, the
// configured duration elapses, ctx is cancelled or the controller is killed.
// Only events observed while the controller is listening are written.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Logger == nil {
		return Summary{}, errors.New("logger must be provided")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	logFile, err := os.OpenFile(opts.Layout.RunLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()

	controller := opts.Control
	if controller == nil {
		controller = NewController(ControllerOptions{
			StartKey:       opts.Config.Capture.StartKey,
			StopKey:        opts.Config.Capture.StopKey,
			StartListening: opts.Config.Capture.StartListening,
			Clock:          clock,
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if secs := opts.Config.Capture.DurationSeconds; secs > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, time.Duration(secs)*time.Second)
		defer cancelTimeout()
	}
	go func() {
		select {
		case <-controller.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	tap, err := events.NewTap(events.Options{
		Clock:  clock,
		Source: opts.Source,
		Gate:   controller,
		OnKey: func(key string) {
			before := controller.State()
			controller.HandleKey(key)
			if after := controller.State(); after != before {
				writeRunLog(logFile, clock(), "controller", "%s -> %s (hotkey %s)", before, after, key)
				opts.Logger.Info("capture toggled", "key", key, "state", after)
			}
		},
	})
	if err != nil {
		controller.Kill(err)
		return Summary{}, fmt.Errorf("initialise event tap: %w", err)
	}

	output := OutputPath(opts.Config, opts.Layout)
	opts.Logger.Info("starting pointer capture", "output", output, "state", controller.State(),
		"start_key", opts.Config.Capture.StartKey, "stop_key", opts.Config.Capture.StopKey)
	writeRunLog(logFile, clock(), "events", "capture started, writing %s", output)

	res, err := tap.Capture(runCtx, output)
	termination := terminationReason(ctx, runCtx, controller)
	if err != nil {
		controller.Kill(err)
		writeRunLog(logFile, clock(), "events", "capture failed: %v", err)
		return Summary{Timeline: controller.Timeline(), Termination: TerminationKilled}, fmt.Errorf("event capture failed: %w", err)
	}
	if termination == TerminationKilled {
		if kerr := controller.Err(); kerr != nil {
			writeRunLog(logFile, clock(), "events", "capture killed: %v", kerr)
			return Summary{Events: res, Timeline: controller.Timeline(), Termination: termination}, kerr
		}
	}

	writeRunLog(logFile, clock(), "events", "recorded %d events (%d dropped while idle, %d hotkeys), %s",
		res.EventCount, res.DroppedCount, res.KeyCount, termination)
	opts.Logger.Info("pointer capture complete",
		"events", res.EventCount, "dropped", res.DroppedCount, "keys", res.KeyCount, "termination", termination)

	return Summary{Events: res, Timeline: controller.Timeline(), Termination: termination}, nil
}

func terminationReason(parent, run context.Context, controller *Controller) string {
	select {
	case <-controller.Done():
		return TerminationKilled
	default:
	}
	switch {
	case parent.Err() != nil:
		return TerminationCancelled
	case errors.Is(run.Err(), context.DeadlineExceeded):
		return TerminationDuration
	default:
		return TerminationSourceEnded
	}
}

func writeRunLog(file *os.File, timestamp time.Time, subsystem, message string, args ...any) {
	if file == nil {
		return
	}
	formatted := message
	if len(args) > 0 {
		formatted = fmt.Sprintf(message, args...)
	}
	line := fmt.Sprintf("[%s] subsystem=%s %s\n", timestamp.UTC().Format(time.RFC3339), subsystem, formatted)
	_, _ = file.WriteString(line)
}
