package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/report"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "channels [request]",
		Short: "Resolve a channel request into the scan list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := ""
			if len(args) == 1 {
				request = args[0]
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				request = cfg.Acquisition.Channels
			}

			channels, err := channel.Resolve(request)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.NewRenderer(out).Channels(channels))
			return nil
		},
	}
}
