package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes and pull server-side updates once",
	Long: `Run one sync pass in the foreground:

  1. Probe the backend; if unreachable, report and exit
  2. Pull the topic tree and remotely changed notes
  3. Drain the outbox in order, oldest change first

Transient failures are retried with backoff within this run; conflicts
park the affected note for 'brainbox resolve'.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		client := newClient()
		engine := newEngine(st, client)

		probeCtx, cancel := context.WithTimeout(ctx, cfg.Daemon.ProbeTimeout)
		err = client.Ping(probeCtx)
		cancel()
		if err != nil {
			pending, _ := st.OutboxLen(ctx)
			fmt.Printf("%s Backend unreachable; %d change(s) remain queued.\n",
				ui.RenderWarn("!"), pending)
			return
		}
		engine.SetOnline(true)

		before, _ := st.OutboxLen(ctx)
		start := time.Now()
		if err := engine.SyncOnce(ctx); err != nil {
			fail("sync failed: %v", err)
		}
		after, _ := st.OutboxLen(ctx)

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Pushed: %d\n", before-after)
		if after > 0 {
			fmt.Printf("   Still queued: %d\n", after)
		}
	},
}
