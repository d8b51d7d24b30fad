package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/mousedynamics/pkg/events"
	"github.com/offlinefirst/mousedynamics/pkg/features"
	"github.com/offlinefirst/mousedynamics/pkg/table"
)

func newSessionCommand(rc *RootCommand) *cobra.Command {
	var confine bool
	cmd := &cobra.Command{
		Use:   "session FILE",
		Short: "Print the feature table of one session file as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rc.ensureAppContext()
			if err != nil {
				return err
			}
			opts := features.Options{ConfineAnglesToAction: app.Config.Extract.ConfineAnglesToAction}
			if cmd.Flags().Changed("confine-angles") {
				opts.ConfineAnglesToAction = confine
			}
			n, err := runSession(args[0], opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app.Logger.Info("session extracted", "path", args[0], "rows", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confine, "confine-angles", false, "Drop the angle change across action boundaries from sum_of_angles")
	return cmd
}

func runSession(path string, opts features.Options, stdout io.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()

	evs, err := events.ReadSession(f)
	if err != nil {
		return 0, err
	}
	rows, err := features.Extract(evs, opts)
	if err != nil {
		return 0, err
	}

	w := table.NewCSVWriter(stdout, false)
	for _, row := range rows {
		if err := w.Write(row, nil); err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
