package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/internal/buildinfo"
	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/logging"
)

// AppContext exposes lazily initialised configuration and logging facilities.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
}

type RootCommand struct {
	cmd        *cobra.Command
	stdout     io.Writer
	stderr     io.Writer
	appCtx     *AppContext
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand constructs the CLI with its subcommands and global flags.
func NewRootCommand() *RootCommand {
	rc := &RootCommand{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	rc.cmd = &cobra.Command{
		Use:   "scrollzoom",
		Short: "Turn scroll wheel input into pinch zoom while a trigger is held",
		Long: `scrollzoom runs in the background and rewrites scroll wheel events into
zoom gestures while a modifier combination, a mouse button or a dot-dash drag
on a multitouch mouse is held.`,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rc.cmd.PersistentFlags()
	flags.StringVar(&rc.configPath, "config", "", "Path to config file (default: ./config.yaml if present)")
	flags.StringVar(&rc.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.StringVar(&rc.logFormat, "log-format", "", "Override log output format (json, console)")

	rc.cmd.AddCommand(
		rc.newRunCommand(),
		rc.newStopCommand(),
		rc.newStatusCommand(),
		rc.newSwitchCommand("enable", true),
		rc.newSwitchCommand("disable", false),
		rc.newDoctorCommand(),
		rc.newTraceCommand(),
		rc.newConfigCommand(),
		rc.newVersionCommand(),
	)

	return rc
}

// SetOutput redirects command output, mainly for tests.
func (rc *RootCommand) SetOutput(stdout, stderr io.Writer) {
	rc.stdout = stdout
	rc.stderr = stderr
}

// Execute evaluates the supplied arguments and dispatches to a subcommand.
func (rc *RootCommand) Execute(args []string) error {
	rc.cmd.SetArgs(args)
	rc.cmd.SetOut(rc.stdout)
	rc.cmd.SetErr(rc.stderr)
	if err := rc.cmd.Execute(); err != nil {
		fmt.Fprintf(rc.stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// withApp loads configuration and logging before fn runs.
func (rc *RootCommand) withApp(fn func(cmd *cobra.Command, args []string, ctx *AppContext) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, err := rc.ensureAppContext()
		if err != nil {
			return err
		}
		return fn(cmd, args, ctx)
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

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: rc.stderr,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded", "source", cfg.Source, "listen", cfg.Control.Listen)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger}
	return rc.appCtx, nil
}

func versionString() string {
	v := buildinfo.Version()
	if rev := buildinfo.Revision(); rev != "" {
		v += " " + rev
	}
	return fmt.Sprintf("%s (%s/%s)", v, runtimeVersion(), runtimeGOOS())
}

// runtimeVersion is extracted for testability.
var runtimeVersion = func() string { return runtime.Version() }

// runtimeGOOS is extracted for testability.
var runtimeGOOS = func() string { return runtime.GOOS }
