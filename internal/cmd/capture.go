package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/mousedynamics/internal/buildinfo"
	"github.com/offlinefirst/mousedynamics/pkg/capture"
	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
)

type captureOptions struct {
	output   string
	duration time.Duration
	listen   bool
}

func newCaptureCommand(rc *RootCommand) *cobra.Command {
	var opts captureOptions
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record pointer events to a session file, toggled by hotkeys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rc.ensureAppContext()
			if err != nil {
				return err
			}
			return runCapture(cmd.Context(), cmd, opts, app, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.output, "output", "", "Session file to write (default: inside the run directory)")
	flags.DurationVar(&opts.duration, "duration", 0, "Stop after this long (overrides capture.duration_seconds)")
	flags.BoolVar(&opts.listen, "listen", false, "Start recording immediately instead of waiting for the start hotkey")
	return cmd
}

// captureSource is nil outside tests so the platform source is used.
var captureSource events.Source

func runCapture(ctx context.Context, cmd *cobra.Command, opts captureOptions, app *AppContext, stdout io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := app.Config
	if opts.output != "" {
		cfg.Capture.OutputFile = opts.output
	}
	if cmd != nil && cmd.Flags().Changed("duration") {
		cfg.Capture.DurationSeconds = int(opts.duration.Round(time.Second) / time.Second)
	}
	if cmd != nil && cmd.Flags().Changed("listen") {
		cfg.Capture.StartListening = opts.listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	env := events.DetectEnvironment()
	if !env.Available {
		app.Logger.Warn("live capture unavailable", "provider", env.Provider, "permission", env.Permission, "message", env.Message)
		if env.Guidance != "" {
			fmt.Fprintln(stdout, env.Guidance)
		}
		return fmt.Errorf("%w: %s", events.ErrAccessibilityPermission, env.Message)
	}

	if err := os.MkdirAll(cfg.Paths.RunsDir, 0o755); err != nil {
		return fmt.Errorf("ensure runs directory: %w", err)
	}
	runID, err := runmanifest.ResolveRunID(cfg.Paths.RunsDir, timeNow())
	if err != nil {
		return fmt.Errorf("resolve run id: %w", err)
	}
	layout := runmanifest.BuildLayout(cfg.Paths.RunsDir, runID)
	if err := runmanifest.EnsureFilesystem(layout); err != nil {
		return fmt.Errorf("prepare run filesystem: %w", err)
	}

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	manifest := runmanifest.New(runmanifest.Options{
		RunID:      runID,
		Kind:       runmanifest.KindCapture,
		CreatedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Config:     cfg,
		Layout:     layout,
	})
	manifest.SetSubsystem(runmanifest.SubsystemStatus{
		Name:       "events",
		Enabled:    true,
		Available:  env.Available,
		State:      runmanifest.SubsystemStatePending,
		Provider:   env.Provider,
		Permission: env.Permission,
		Message:    env.Message,
	})
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	output := capture.OutputPath(cfg, layout)
	if cfg.Capture.StartListening {
		fmt.Fprintf(stdout, "Recording to %s; press %s to stop.\n", output, cfg.Capture.StopKey)
	} else {
		fmt.Fprintf(stdout, "Press %s to start recording to %s and %s to stop.\n", cfg.Capture.StartKey, output, cfg.Capture.StopKey)
	}

	summary, capErr := capture.Run(ctx, capture.Options{
		Config: cfg,
		Layout: layout,
		Logger: app.Logger,
		Clock:  timeNow,
		Source: captureSource,
	})

	manifest.Status.Controller = summary.Timeline
	manifest.Status.Termination = summary.Termination
	manifest.Paths.Session = layout.Relative(output)
	if !summary.Events.CaptureStart.IsZero() {
		start := summary.Events.CaptureStart.UTC()
		manifest.Status.StartedAt = &start
	}
	if !summary.Events.CaptureEnd.IsZero() {
		end := summary.Events.CaptureEnd.UTC()
		manifest.Status.EndedAt = &end
	}

	eventsStatus := runmanifest.SubsystemStatus{
		Name:       "events",
		Enabled:    true,
		Available:  env.Available,
		Provider:   env.Provider,
		Permission: env.Permission,
	}
	if capErr != nil {
		eventsStatus.State = runmanifest.SubsystemStateErrored
		eventsStatus.Message = capErr.Error()
		manifest.Status.State = runmanifest.StateFailed
		manifest.Status.Summary = capErr.Error()
	} else {
		eventsStatus.State = runmanifest.SubsystemStateCompleted
		eventsStatus.Message = fmt.Sprintf("%d events recorded, %d dropped while idle", summary.Events.EventCount, summary.Events.DroppedCount)
		manifest.Status.State = runmanifest.StateCompleted
		manifest.Status.Summary = fmt.Sprintf("recorded %d events (%s)", summary.Events.EventCount, summary.Termination)
		manifest.Totals = runmanifest.Totals{Sessions: 1, Completed: 1}
	}
	manifest.SetSubsystem(eventsStatus)

	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		if capErr != nil {
			return fmt.Errorf("%v (additionally failed to persist manifest: %w)", capErr, err)
		}
		return fmt.Errorf("finalise manifest: %w", err)
	}
	if capErr != nil {
		return capErr
	}

	fmt.Fprintf(stdout, "Run directory: %s\n", layout.Root)
	fmt.Fprintf(stdout, "Session: %s\n", output)
	fmt.Fprintf(stdout, "Recorded %d events (%d dropped while idle, %d hotkeys), termination: %s\n",
		summary.Events.EventCount, summary.Events.DroppedCount, summary.Events.KeyCount, summary.Termination)
	return nil
}
