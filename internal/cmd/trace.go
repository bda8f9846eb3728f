package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/pkg/replay"
)

func (rc *RootCommand) newTraceCommand() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "trace <scenario.yaml>",
		Short: "Replay a scripted input scenario and print the synthesized events",
		Long: `Replays trigger changes, scroll samples, touch frames and clock advances from a
YAML scenario against the in-memory event simulator. Each posted event is
printed as one JSON line.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
			scenario, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			ctx.Logger.Info("replaying scenario", "name", scenario.Name, "steps", len(scenario.Steps))

			result, err := replay.Run(scenario, rc.stdout, ctx.Logger)
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}
			if summary {
				return printJSON(rc.stderr, result)
			}
			fmt.Fprintf(rc.stderr, "%d events posted; %d scroll events delivered, %d dropped\n", result.Posted, result.Delivered, result.Dropped)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the full run summary as JSON on stderr")
	return cmd
}
