package cmd

import (
	"github.com/spf13/cobra"

	"github.com/offlinefirst/scrollzoom/pkg/config"
)

func (rc *RootCommand) newConfigCommand() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: rc.withApp(func(cmd *cobra.Command, args []string, ctx *AppContext) error {
			cfg := ctx.Config
			if defaults {
				cfg = config.Default()
			}
			ctx.Logger.Debug("printing configuration", "source", cfg.Source)
			return config.Encode(rc.stdout, cfg)
		}),
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Print the built-in defaults instead, as a starting config.yaml")
	return cmd
}
