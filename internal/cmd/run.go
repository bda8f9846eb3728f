package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/internal/buildinfo"
	"github.com/offlinefirst/scrollzoom/internal/daemon"
	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/control"
	"github.com/offlinefirst/scrollzoom/pkg/dotdash"
	"github.com/offlinefirst/scrollzoom/pkg/engine"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/permissions"
	"github.com/offlinefirst/scrollzoom/pkg/procinfo"
	"github.com/offlinefirst/scrollzoom/pkg/runloop"
	"github.com/offlinefirst/scrollzoom/pkg/runmanifest"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
)

const shutdownTimeout = 5 * time.Second

var errShutdownRequested = errors.New("shutdown requested")

type runOptions struct {
	listen  string
	detach  bool
	trace   string
	logFile string
}

func (rc *RootCommand) newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scroll-to-zoom agent",
		Long: `Installs the event taps and serves the control API until interrupted or
stopped with 'scrollzoom stop'.`,
		Args: cobra.NoArgs,
		RunE: rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
			if opts.listen == "" {
				opts.listen = ctx.Config.Control.Listen
			}
			if opts.detach && !daemon.IsChild() {
				return rc.detach(ctx, opts)
			}
			return runAgent(cmd.Context(), ctx, opts, rc.stdout)
		}),
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Control server address (default: control.listen from config)")
	cmd.Flags().BoolVarP(&opts.detach, "detach", "d", false, "Run the agent in the background")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "Append every synthesized event to this file as JSON lines")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Log file for a detached agent")
	return cmd
}

// detach re-launches the binary in the background. The child runs from /,
// so every path it is handed must be absolute.
func (rc *RootCommand) detach(ctx *AppContext, opts runOptions) error {
	var extra []string
	if ctx.Config.Source != config.Default().Source {
		abs, err := filepath.Abs(ctx.Config.Source)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		extra = append(extra, "--config", abs)
	}
	if opts.trace != "" {
		abs, err := filepath.Abs(opts.trace)
		if err != nil {
			return fmt.Errorf("resolve trace path: %w", err)
		}
		extra = append(extra, "--trace", abs)
	}
	extra = append(extra, "--listen", opts.listen)

	child, err := daemon.Daemonize(opts.logFile, extra...)
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	if child != nil {
		fmt.Fprintf(rc.stdout, "scrollzoom agent started in background (pid %d), control on %s\n", child.Pid, opts.listen)
	}
	return nil
}

var (
	newPlatform    = events.NewPlatform
	newLoop        = runloop.NewMain
	newTouchSource = dotdash.NewSource
	newProcesses   = func() engine.ProcessLookup { return procinfo.New(procinfo.Options{}) }
	newRunID       = func() string { return uuid.NewString() }
	accessibility  = func() func() bool { return permissions.AccessibilityCheck(nil, true) }
	manifestPath   = runmanifest.DefaultPath
	// serverStarted is called with the bound control address.
	serverStarted = func(addr string) {}
)

// runAgent wires the engine to the system and blocks in the run loop. The
// calling goroutine must be the main thread on macOS.
func runAgent(parent context.Context, app *AppContext, opts runOptions, stdout io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	if parent == nil {
		parent = context.Background()
	}
	cfg := app.Config
	runID := newRunID()
	logger := app.Logger.With("run_id", runID)
	logger.Info("run command invoked", "config_source", cfg.Source, "listen", opts.listen, "detached", daemon.IsChild())

	platform, err := newPlatform()
	if err != nil {
		return fmt.Errorf("create event platform: %w", err)
	}
	if opts.trace != "" {
		file, err := os.OpenFile(opts.trace, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer file.Close()
		platform = events.Traced(platform, events.NewRecorder(file), func(err error) {
			logger.Warn("trace write failed", "error", err)
		})
	}

	values, err := settings.Load(cfg)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	store := settings.NewStore(values, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if cfg.Source != config.Default().Source {
		if err := store.Watch(ctx, cfg.Source, settings.LoadFile); err != nil {
			logger.Warn("config changes will not be picked up", "error", err)
		}
	}

	loop := newLoop()

	touches, err := newTouchSource()
	if err != nil {
		logger.Info("dot-dash drags unavailable", "error", err)
		touches = nil
	}
	detector := dotdash.New(dotdash.Options{
		TapInterval: cfg.DotDash.TapInterval,
		TapDistance: cfg.DotDash.TapDistance,
		EdgeMargin:  cfg.DotDash.EdgeMargin,
		MaxSpeed:    cfg.DotDash.MaxSpeed,
		MinDensity:  cfg.DotDash.MinDensity,
		Now:         loop.Now,
		Handoff:     loop.Send,
		Logger:      logger,
	})

	eng, err := engine.New(engine.Options{
		Platform:   platform,
		Loop:       loop,
		Settings:   store,
		Processes:  newProcesses(),
		Permission: accessibility(),
		Detector:   detector,
		Touches:    touches,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	srv, err := control.New(control.Options{
		Addr:     opts.listen,
		Engine:   eng,
		Loop:     loop,
		RunID:    runID,
		Version:  buildinfo.Version(),
		Shutdown: func() { cancel(errShutdownRequested) },
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	man := runmanifest.New(runmanifest.Options{
		RunID:      runID,
		CreatedAt:  time.Now(),
		Hostname:   hostname,
		AppVersion: buildinfo.Version(),
		PID:        os.Getpid(),
		Trace:      opts.trace,
		Config:     cfg,
	})
	record := manifestRecorder(logger)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	// Everything below talks to the engine through the loop, so it runs on
	// its own goroutine while this one drives the loop.
	var startErr error
	go func() {
		defer stopLoop()

		loop.Send(func() {
			if cfg.DotDash.Enabled && !eng.SetDotDashEnabled(true) {
				logger.Warn("dot-dash drags requested but no multitouch input is available")
			}
			if !eng.SetEnabled(true) {
				logger.Error("event taps not installed; grant access and run 'scrollzoom enable'",
					"error", events.ErrAccessibilityPermission)
			}
		})

		if err := srv.Start(); err != nil {
			startErr = err
			man.Transition(runmanifest.StateFailed, err.Error(), time.Now())
			record(man)
			loop.Send(eng.Close)
			return
		}
		man.Listen = srv.Addr()
		man.Transition(runmanifest.StateRunning, "control server listening", time.Now())
		record(man)
		serverStarted(srv.Addr())
		fmt.Fprintf(stdout, "scrollzoom agent running (run %s), control on %s\n", runID, srv.Addr())

		<-ctx.Done()
		reason := "interrupted"
		if errors.Is(context.Cause(ctx), errShutdownRequested) {
			reason = errShutdownRequested.Error()
		}
		logger.Info("shutting down", "reason", reason)

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Close(shutdownCtx); err != nil {
			logger.Warn("control server shutdown", "error", err)
		}
		loop.Send(eng.Close)
		man.Transition(runmanifest.StateStopped, reason, time.Now())
		record(man)
	}()

	if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run loop: %w", err)
	}
	if startErr != nil {
		return startErr
	}
	logger.Info("agent stopped")
	return nil
}

// manifestRecorder returns a function persisting the run manifest. Failures
// are logged; the agent runs without a manifest.
func manifestRecorder(logger *slog.Logger) func(runmanifest.Manifest) {
	path, err := manifestPath()
	if err != nil {
		logger.Warn("run manifest disabled", "error", err)
		return func(runmanifest.Manifest) {}
	}
	return func(man runmanifest.Manifest) {
		if err := runmanifest.Save(man, path); err != nil {
			logger.Warn("failed to save run manifest", "path", path, "error", err)
			return
		}
		logger.Debug("run manifest saved", "path", path, "state", man.Status.State)
	}
}
