package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/permissions"
)

func newDoctorCommand(rc *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report configuration, capture backend and permission status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rc.ensureAppContext()
			if err != nil {
				return err
			}
			runDoctor(app.Config, events.DetectEnvironment(), permissions.ProbeAccessibility(nil), cmd.OutOrStdout())
			return nil
		},
	}
}

func runDoctor(cfg config.Config, env events.Environment, access permissions.ProbeResult, stdout io.Writer) {
	fmt.Fprintf(stdout, "Version: %s\n", versionString())
	fmt.Fprintf(stdout, "Config source: %s\n", cfg.Source)

	fmt.Fprintln(stdout, "Paths:")
	fmt.Fprintf(stdout, "  sessions_dir: %s (%s)\n", cfg.Paths.SessionsDir, dirState(cfg.Paths.SessionsDir))
	if cfg.Paths.LabelsFile != "" {
		fmt.Fprintf(stdout, "  labels_file: %s (%s)\n", cfg.Paths.LabelsFile, fileState(cfg.Paths.LabelsFile))
	} else {
		fmt.Fprintln(stdout, "  labels_file: (none, table has no label column)")
	}
	fmt.Fprintf(stdout, "  runs_dir: %s (%s)\n", cfg.Paths.RunsDir, dirState(cfg.Paths.RunsDir))

	fmt.Fprintln(stdout, "Capture:")
	fmt.Fprintf(stdout, "  provider: %s\n", env.Provider)
	fmt.Fprintf(stdout, "  available: %t\n", env.Available)
	fmt.Fprintf(stdout, "  accessibility: %s\n", access.StatusString())
	if env.Message != "" {
		fmt.Fprintf(stdout, "  note: %s\n", env.Message)
	}
	if env.Guidance != "" {
		fmt.Fprintf(stdout, "  guidance: %s\n", env.Guidance)
	}
	fmt.Fprintf(stdout, "  hotkeys: start=%s stop=%s\n", cfg.Capture.StartKey, cfg.Capture.StopKey)

	fmt.Fprintln(stdout, "Outputs:")
	if cfg.Storage.Enabled {
		fmt.Fprintf(stdout, "  storage: enabled (%s, bucket %s)\n", cfg.Storage.Endpoint, cfg.Storage.Bucket)
	} else {
		fmt.Fprintln(stdout, "  storage: disabled")
	}
	if cfg.Notify.Enabled {
		fmt.Fprintf(stdout, "  notify: enabled (exchange %s, routing key %s)\n", cfg.Notify.Exchange, cfg.Notify.RoutingKey)
	} else {
		fmt.Fprintln(stdout, "  notify: disabled")
	}
}

func dirState(path string) string {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "missing"
	case !info.IsDir():
		return "not a directory"
	default:
		return "ok"
	}
}

func fileState(path string) string {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "missing"
	case info.IsDir():
		return "is a directory"
	default:
		return "ok"
	}
}
