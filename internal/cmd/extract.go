package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/mousedynamics/internal/buildinfo"
	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/dataset"
	"github.com/offlinefirst/mousedynamics/pkg/features"
	"github.com/offlinefirst/mousedynamics/pkg/labels"
	"github.com/offlinefirst/mousedynamics/pkg/notify"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
	"github.com/offlinefirst/mousedynamics/pkg/storage"
	"github.com/offlinefirst/mousedynamics/pkg/table"
)

type extractOptions struct {
	sessionsDir string
	labelsFile  string
	format      string
	workers     int
	planOnly    bool
}

func newExtractCommand(rc *RootCommand) *cobra.Command {
	var opts extractOptions
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the feature table from every session in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rc.ensureAppContext()
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), opts, app, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.sessionsDir, "sessions", "", "Directory of session files (overrides paths.sessions_dir)")
	flags.StringVar(&opts.labelsFile, "labels", "", "Label table CSV (overrides paths.labels_file)")
	flags.StringVar(&opts.format, "format", "", "Feature table format: csv or parquet (overrides extract.format)")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent sessions (overrides extract.workers)")
	flags.BoolVar(&opts.planOnly, "plan-only", false, "Print the resolved configuration and sessions without extracting")
	return cmd
}

var (
	timeNow      = time.Now
	hostname     = os.Hostname
	manifestSave = runmanifest.Save
)

type runUploader interface {
	UploadRun(ctx context.Context, runID string, files []string) ([]string, error)
}

type runPublisher interface {
	Publish(ctx context.Context, ev notify.Event) error
	Close() error
}

var newUploader = func(cfg config.StorageConfig) (runUploader, error) {
	u, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	return u, nil
}

var newPublisher = func(cfg config.NotifyConfig) (runPublisher, error) {
	p, err := notify.Dial(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (o extractOptions) apply(cfg config.Config) (config.Config, error) {
	if o.sessionsDir != "" {
		cfg.Paths.SessionsDir = o.sessionsDir
	}
	if o.labelsFile != "" {
		cfg.Paths.LabelsFile = o.labelsFile
	}
	if o.format != "" {
		format, err := config.NormalizeTableFormat(o.format)
		if err != nil {
			return cfg, err
		}
		cfg.Extract.Format = format
	}
	if o.workers != 0 {
		cfg.Extract.Workers = o.workers
	}
	return cfg, cfg.Validate()
}

func runExtract(ctx context.Context, opts extractOptions, app *AppContext, stdout io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.apply(app.Config)
	if err != nil {
		return err
	}
	logger := app.Logger

	sessions, err := dataset.Discover(cfg.Paths.SessionsDir, cfg.Extract.SessionPrefix)
	if err != nil {
		return err
	}
	logger.Info("extract command invoked", "plan_only", opts.planOnly, "sessions", len(sessions),
		"sessions_dir", cfg.Paths.SessionsDir, "workers", cfg.Extract.Workers, "format", cfg.Extract.Format)

	if opts.planOnly {
		printExtractPlan(cfg, sessions, stdout)
		return nil
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions found in %s (prefix %q)", cfg.Paths.SessionsDir, cfg.Extract.SessionPrefix)
	}

	var resolver *labels.Resolver
	if cfg.Paths.LabelsFile != "" {
		if resolver, err = labels.Load(cfg.Paths.LabelsFile); err != nil {
			return fmt.Errorf("load labels: %w", err)
		}
		logger.Info("label table loaded", "path", cfg.Paths.LabelsFile, "sessions", resolver.Len())
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
	runLog, err := os.OpenFile(layout.RunLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer runLog.Close()

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	manifest := runmanifest.New(runmanifest.Options{
		RunID:      runID,
		Kind:       runmanifest.KindExtract,
		CreatedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Config:     cfg,
		Layout:     layout,
	})
	started := timeNow().UTC()
	manifest.Status.StartedAt = &started
	manifest.Status.State = runmanifest.StateRunning
	manifest.Status.Summary = fmt.Sprintf("extracting %d sessions", len(sessions))
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fail := func(termination string, cause error) error {
		ended := timeNow().UTC()
		manifest.Status.EndedAt = &ended
		manifest.Status.State = runmanifest.StateFailed
		manifest.Status.Termination = termination
		manifest.Status.Summary = cause.Error()
		logger.Error("extraction run failed", "run_id", runID, "error", cause)
		writeRunLog(runLog, ended, "run", "failed: %v", cause)
		if saveErr := manifestSave(manifest, layout.ManifestPath); saveErr != nil {
			return fmt.Errorf("%v (additionally failed to persist manifest: %w)", cause, saveErr)
		}
		return cause
	}

	outcomes, procErr := dataset.Process(ctx, sessions, dataset.Options{
		Workers:  cfg.Extract.Workers,
		Labels:   resolver,
		Features: features.Options{ConfineAnglesToAction: cfg.Extract.ConfineAnglesToAction},
		Logger:   logger,
	})
	for _, o := range outcomes {
		status := o.Status()
		manifest.AddSession(status)
		if status.Message != "" {
			writeRunLog(runLog, timeNow(), "session", "id=%s state=%s rows=%d: %s", status.ID, status.State, status.Rows, status.Message)
		} else {
			writeRunLog(runLog, timeNow(), "session", "id=%s state=%s rows=%d", status.ID, status.State, status.Rows)
		}
	}
	if procErr != nil {
		termination := "error"
		if errors.Is(procErr, context.Canceled) || errors.Is(procErr, context.DeadlineExceeded) {
			termination = "cancelled"
		}
		return fail(termination, fmt.Errorf("extract sessions: %w", procErr))
	}

	format, err := table.ParseFormat(cfg.Extract.Format)
	if err != nil {
		return fail("error", err)
	}
	tablePath := layout.FeatureTablePath(format.Extension())
	writer, err := table.Create(tablePath, format, resolver != nil)
	if err != nil {
		return fail("error", err)
	}
	rows, writeErr := dataset.WriteTable(writer, outcomes)
	if closeErr := writer.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fail("error", fmt.Errorf("write feature table: %w", writeErr))
	}
	manifest.Paths.FeatureTable = layout.Relative(tablePath)
	writeRunLog(runLog, timeNow(), "table", "wrote %d rows to %s", rows, manifest.Paths.FeatureTable)

	ended := timeNow().UTC()
	manifest.Status.EndedAt = &ended
	manifest.Status.State = runmanifest.StateCompleted
	manifest.Status.Termination = "completed"
	manifest.Status.Summary = fmt.Sprintf("%d sessions: %d completed, %d skipped, %d failed; %d rows",
		manifest.Totals.Sessions, manifest.Totals.Completed, manifest.Totals.Skipped, manifest.Totals.Failed, manifest.Totals.Rows)
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("finalise manifest: %w", err)
	}

	uploadRun(ctx, cfg, app, &manifest, layout, tablePath, runLog)
	notifyRun(ctx, cfg, app, &manifest, runLog)
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("finalise manifest: %w", err)
	}

	logger.Info("extraction run complete", "run_id", runID, "sessions", manifest.Totals.Sessions,
		"completed", manifest.Totals.Completed, "skipped", manifest.Totals.Skipped,
		"failed", manifest.Totals.Failed, "rows", manifest.Totals.Rows)

	fmt.Fprintf(stdout, "Run directory: %s\n", layout.Root)
	fmt.Fprintf(stdout, "Manifest: %s\n", layout.ManifestPath)
	fmt.Fprintf(stdout, "Feature table: %s (%d rows)\n", tablePath, rows)
	fmt.Fprintf(stdout, "Sessions: %d completed, %d skipped, %d failed\n",
		manifest.Totals.Completed, manifest.Totals.Skipped, manifest.Totals.Failed)
	for _, s := range manifest.Sessions {
		if s.State != runmanifest.SessionCompleted {
			fmt.Fprintf(stdout, "  - %s: %s (%s)\n", s.ID, s.State, s.Message)
		}
	}
	for _, sub := range manifest.Status.Subsystems {
		fmt.Fprintf(stdout, "%s: %s", sub.Name, sub.State)
		if sub.Message != "" {
			fmt.Fprintf(stdout, " (%s)", sub.Message)
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func uploadRun(ctx context.Context, cfg config.Config, app *AppContext, manifest *runmanifest.Manifest, layout runmanifest.Layout, tablePath string, runLog *os.File) {
	status := runmanifest.SubsystemStatus{Name: "storage", Enabled: cfg.Storage.Enabled, Provider: "minio"}
	if !cfg.Storage.Enabled {
		status.State = runmanifest.SubsystemStateSkipped
		manifest.SetSubsystem(status)
		return
	}

	uploader, err := newUploader(cfg.Storage)
	if err != nil {
		status.State = runmanifest.SubsystemStateUnavailable
		status.Message = err.Error()
		manifest.SetSubsystem(status)
		app.Logger.Warn("object storage unavailable", "error", err)
		return
	}
	status.Available = true

	keys, err := uploader.UploadRun(ctx, layout.RunID, []string{tablePath, layout.ManifestPath, layout.RunLogPath})
	manifest.Uploads = keys
	if err != nil {
		status.State = runmanifest.SubsystemStateErrored
		status.Message = err.Error()
		app.Logger.Warn("upload failed", "uploaded", len(keys), "error", err)
		writeRunLog(runLog, timeNow(), "storage", "upload failed after %d objects: %v", len(keys), err)
	} else {
		status.State = runmanifest.SubsystemStateCompleted
		status.Message = fmt.Sprintf("uploaded %d objects to %s", len(keys), cfg.Storage.Bucket)
		app.Logger.Info("run uploaded", "bucket", cfg.Storage.Bucket, "objects", len(keys))
		writeRunLog(runLog, timeNow(), "storage", "uploaded %d objects to %s", len(keys), cfg.Storage.Bucket)
	}
	manifest.SetSubsystem(status)
}

func notifyRun(ctx context.Context, cfg config.Config, app *AppContext, manifest *runmanifest.Manifest, runLog *os.File) {
	status := runmanifest.SubsystemStatus{Name: "notify", Enabled: cfg.Notify.Enabled, Provider: "amqp"}
	if !cfg.Notify.Enabled {
		status.State = runmanifest.SubsystemStateSkipped
		manifest.SetSubsystem(status)
		return
	}

	publisher, err := newPublisher(cfg.Notify)
	if err != nil {
		status.State = runmanifest.SubsystemStateUnavailable
		status.Message = err.Error()
		manifest.SetSubsystem(status)
		app.Logger.Warn("message broker unavailable", "error", err)
		return
	}
	defer publisher.Close()
	status.Available = true

	ev := notify.NewEvent(*manifest, timeNow())
	if err := publisher.Publish(ctx, ev); err != nil {
		status.State = runmanifest.SubsystemStateErrored
		status.Message = err.Error()
		app.Logger.Warn("notification failed", "error", err)
	} else {
		status.State = runmanifest.SubsystemStateCompleted
		status.Message = "published " + ev.ID
		app.Logger.Info("run notification published", "event_id", ev.ID, "exchange", cfg.Notify.Exchange)
		writeRunLog(runLog, timeNow(), "notify", "published %s %s", ev.Type, ev.ID)
	}
	manifest.SetSubsystem(status)
}

func printExtractPlan(cfg config.Config, sessions []dataset.Session, stdout io.Writer) {
	fmt.Fprintf(stdout, "Resolved configuration (source: %s)\n", cfg.Source)
	fmt.Fprintf(stdout, "  paths.sessions_dir: %s\n", cfg.Paths.SessionsDir)
	fmt.Fprintf(stdout, "  paths.labels_file: %s\n", cfg.Paths.LabelsFile)
	fmt.Fprintf(stdout, "  paths.runs_dir: %s\n", cfg.Paths.RunsDir)
	fmt.Fprintf(stdout, "  extract.workers: %d\n", cfg.Extract.Workers)
	fmt.Fprintf(stdout, "  extract.format: %s\n", cfg.Extract.Format)
	fmt.Fprintf(stdout, "  extract.session_prefix: %q\n", cfg.Extract.SessionPrefix)
	fmt.Fprintf(stdout, "  extract.confine_angles_to_action: %t\n", cfg.Extract.ConfineAnglesToAction)
	fmt.Fprintf(stdout, "  storage.enabled: %t\n", cfg.Storage.Enabled)
	fmt.Fprintf(stdout, "  notify.enabled: %t\n", cfg.Notify.Enabled)
	fmt.Fprintf(stdout, "  logging.level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "  logging.format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(stdout, "Sessions (%d):\n", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(stdout, "  %s  %s\n", s.ID, s.Path)
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
