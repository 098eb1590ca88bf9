package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground until interrupted.

The daemon probes backend connectivity, pushes queued changes the moment
the server becomes reachable, and polls periodically so server-side
changes land even when nothing happens locally. Stop it with SIGINT or
SIGTERM; an in-flight send is allowed to settle before shutdown.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := daemon.New(cfg)
		if err != nil {
			fail("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fail("%v", err)
		}
	},
}
