package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/mousedynamics/internal/buildinfo"
	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/logging"
)

// AppContext exposes lazily initialised configuration and logging facilities.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
}

// RootCommand wires the cobra command tree to shared configuration and logging.
type RootCommand struct {
	cmd        *cobra.Command
	stdout     io.Writer
	stderr     io.Writer
	appCtx     *AppContext
	logCloser  io.Closer
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand constructs the CLI with its subcommands and global flags.
func NewRootCommand() *RootCommand {
	rc := &RootCommand{stdout: os.Stdout, stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "mousedyn",
		Short:         "Mouse-dynamics feature extraction",
		Long:          "mousedyn turns recorded pointer sessions into per-event mouse-dynamics feature tables and captures new sessions.",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&rc.configPath, "config", "", "Path to config file (default: ./config.yaml if present)")
	flags.StringVar(&rc.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.StringVar(&rc.logFormat, "log-format", "", "Override log output format (json, console)")

	root.AddCommand(
		newExtractCommand(rc),
		newSessionCommand(rc),
		newCaptureCommand(rc),
		newDoctorCommand(rc),
		newVersionCommand(),
	)

	rc.cmd = root
	return rc
}

// SetOutput redirects command output, mainly for tests.
func (rc *RootCommand) SetOutput(stdout, stderr io.Writer) {
	rc.stdout = stdout
	rc.stderr = stderr
	rc.cmd.SetOut(stdout)
	rc.cmd.SetErr(stderr)
}

// Execute parses args and runs the selected subcommand.
func (rc *RootCommand) Execute(ctx context.Context, args []string) error {
	defer rc.close()
	rc.cmd.SetArgs(args)
	rc.cmd.SetOut(rc.stdout)
	rc.cmd.SetErr(rc.stderr)
	if err := rc.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rc.stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (rc *RootCommand) close() {
	if rc.logCloser != nil {
		_ = rc.logCloser.Close()
		rc.logCloser = nil
	}
}

func (rc *RootCommand) ensureAppContext() (*AppContext, error) {
	if rc.appCtx != nil {
		return rc.appCtx, nil
	}

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}

	if rc.logLevel != "" {
		lvl, err := config.NormalizeLogLevel(rc.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = lvl
	}
	if rc.logFormat != "" {
		format, err := config.NormalizeFormat(rc.logFormat)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Format = format
	}

	opts := logging.FromConfig(cfg.Logging)
	opts.Output = rc.stderr
	logger, closer, err := logging.New(opts)
	if err != nil {
		return nil, err
	}
	rc.logCloser = closer

	logger.Info("configuration loaded", "source", cfg.Source, "sessions_dir", cfg.Paths.SessionsDir, "runs_dir", cfg.Paths.RunsDir)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger}
	return rc.appCtx, nil
}

func versionString() string {
	return fmt.Sprintf("%s (%s/%s)", buildinfo.Version(), runtimeVersion(), runtimeGOOS())
}

// runtimeVersion is extracted for testability.
var runtimeVersion = func() string { return runtime.Version() }

// runtimeGOOS is extracted for testability.
var runtimeGOOS = func() string { return runtime.GOOS }
