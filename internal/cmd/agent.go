package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/internal/daemon"
	"github.com/offlinefirst/scrollzoom/pkg/control"
	"github.com/offlinefirst/scrollzoom/pkg/runmanifest"
)

const requestTimeout = 10 * time.Second

// listenFlag adds --listen and returns the address to use. Without the flag
// the address comes from the run manifest of a running agent, then from the
// configuration.
func listenFlag(cmd *cobra.Command) func(ctx *AppContext) string {
	var listen string
	cmd.Flags().StringVar(&listen, "listen", "", "Control server address of the running agent (default: from the run manifest, then control.listen)")
	return func(ctx *AppContext) string {
		if listen != "" {
			return listen
		}
		if path, err := manifestPath(); err == nil {
			if man, err := runmanifest.Load(path); err == nil && man.Running() {
				ctx.Logger.Debug("using agent address from run manifest", "path", path, "listen", man.Listen)
				return man.Listen
			}
		}
		return ctx.Config.Control.Listen
	}
}

func (rc *RootCommand) newStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running agent",
		Args:  cobra.NoArgs,
	}
	addr := listenFlag(cmd)
	cmd.RunE = rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
		reqCtx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		if err := daemon.Stop(reqCtx, addr(ctx)); err != nil {
			return err
		}
		fmt.Fprintln(rc.stdout, "scrollzoom agent stopped")
		return nil
	})
	return cmd
}

func (rc *RootCommand) newStatusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running agent's state",
		Args:  cobra.NoArgs,
	}
	addr := listenFlag(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status as JSON")
	cmd.RunE = rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
		client, err := control.NewClient(addr(ctx))
		if err != nil {
			return err
		}
		reqCtx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		st, err := client.Status(reqCtx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(rc.stdout, st)
		}
		printStatus(rc.stdout, st)
		return nil
	})
	return cmd
}

func (rc *RootCommand) newSwitchCommand(name string, enable bool) *cobra.Command {
	var dotDash bool
	verb := "Install"
	if !enable {
		verb = "Remove"
	}
	cmd := &cobra.Command{
		Use:   name,
		Short: verb + " the running agent's event taps",
		Args:  cobra.NoArgs,
	}
	addr := listenFlag(cmd)
	cmd.Flags().BoolVar(&dotDash, "dotdash", false, "Switch dot-dash drag recognition instead of the event taps")
	cmd.RunE = rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
		client, err := control.NewClient(addr(ctx))
		if err != nil {
			return err
		}
		reqCtx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		what := "scroll-to-zoom"
		var res control.SwitchResult
		if dotDash {
			what = "dot-dash drag"
			res, err = client.SetDotDashEnabled(reqCtx, enable)
		} else {
			res, err = client.SetEnabled(reqCtx, enable)
		}
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("agent could not %s %s; run 'scrollzoom doctor'", name, what)
		}
		fmt.Fprintf(rc.stdout, "%s %sd\n", what, name)
		return nil
	})
	return cmd
}

func printStatus(w io.Writer, st control.StatusResult) {
	fmt.Fprintf(w, "Agent: pid %d, version %s, run %s\n", st.PID, st.Version, st.RunID)
	fmt.Fprintf(w, "  enabled: %t\n", st.Enabled)
	fmt.Fprintf(w, "  trigger: %s (held: %t)\n", st.Trigger, st.TriggerHeld)
	fmt.Fprintf(w, "  exclusive: %t\n", st.Exclusive)
	fmt.Fprintf(w, "  mutating: %t\n", st.Mutating)
	fmt.Fprintf(w, "  dotdash: enabled=%t listening=%t\n", st.DotDashEnabled, st.DotDashListening)
	fmt.Fprintf(w, "  devices: %d\n", st.Devices)
	if len(st.Taps) > 0 {
		fmt.Fprintln(w, "  taps:")
		for _, tap := range st.Taps {
			fmt.Fprintf(w, "    - %s: registered=%t enabled=%t\n", tap.Name, tap.Registered, tap.Enabled)
		}
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
