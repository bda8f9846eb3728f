package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/pkg/control"
	"github.com/offlinefirst/scrollzoom/pkg/dotdash"
	"github.com/offlinefirst/scrollzoom/pkg/engine"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/runloop"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
)

func (rc *RootCommand) newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose permissions, multitouch input and competing event taps",
		Args:  cobra.NoArgs,
	}
	addr := listenFlag(cmd)
	cmd.RunE = rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
		return runDoctor(cmd.Context(), ctx, addr(ctx), rc.stdout)
	})
	return cmd
}

func runDoctor(ctx context.Context, app *AppContext, addr string, stdout io.Writer) error {
	env := events.DetectEnvironment(nil)
	fmt.Fprintf(stdout, "Event interception: provider=%s available=%t permission=%s\n", env.Provider, env.Available, env.Permission)
	if env.Message != "" {
		fmt.Fprintf(stdout, "  %s\n", env.Message)
	}
	if env.Guidance != "" {
		fmt.Fprintf(stdout, "  hint: %s\n", env.Guidance)
	}

	fmt.Fprintf(stdout, "Configuration: %s\n", app.Config.Source)
	values, err := settings.Load(app.Config)
	if err != nil {
		fmt.Fprintf(stdout, "  settings: invalid (%v)\n", err)
		values = settings.Defaults()
	} else {
		fmt.Fprintf(stdout, "  trigger: %s\n", values.Trigger)
		fmt.Fprintf(stdout, "  magnifier: %g, momentum attenuation: %g, min momentum: %g\n", values.Magnifier, values.Attenuation, values.MinMomentum)
		fmt.Fprintf(stdout, "  per-app overrides: %d\n", len(values.Apps))
	}

	fmt.Fprintf(stdout, "Multitouch input: %s\n", checkTouches())

	platform, err := newPlatform()
	if err != nil {
		fmt.Fprintf(stdout, "Event taps: unavailable (%v)\n", err)
	} else {
		eng, err := engine.New(engine.Options{
			Platform:  platform,
			Loop:      runloop.NewPortable(),
			Settings:  settings.NewStore(values, app.Logger),
			Processes: newProcesses(),
			Logger:    app.Logger,
		})
		if err != nil {
			return err
		}
		printInterceptors(stdout, eng.Interceptors())
	}

	client, err := control.NewClient(addr)
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	st, err := client.Status(reqCtx)
	if err != nil {
		fmt.Fprintf(stdout, "Agent: not reachable on %s\n", addr)
		return nil
	}
	printStatus(stdout, st)
	return nil
}

// discardTouches is the sink used while checking multitouch input.
type discardTouches struct{}

func (discardTouches) HandleFrame(uint64, []dotdash.Touch) {}
func (discardTouches) Forget(uint64)                       {}

func checkTouches() string {
	touches, err := newTouchSource()
	if err == nil {
		err = touches.Start(discardTouches{})
	}
	if err != nil {
		return fmt.Sprintf("unavailable (%v)", err)
	}
	defer touches.Stop()
	if counter, ok := touches.(interface{ Devices() int }); ok {
		return fmt.Sprintf("available (%d Magic Mouse connected)", counter.Devices())
	}
	return "available"
}

func printInterceptors(w io.Writer, interceptors []engine.Interceptor) {
	if len(interceptors) == 0 {
		fmt.Fprintln(w, "Event taps: exclusive (no other application rewrites scroll events)")
		return
	}
	fmt.Fprintf(w, "Event taps: shared with %d interceptor(s); the sign bridge will be used\n", len(interceptors))
	for _, in := range interceptors {
		state := "enabled"
		if !in.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "  - %s (pid %d, tap %d, %s)\n", in.BundleID, in.TappingPID, in.ID, state)
	}
}
