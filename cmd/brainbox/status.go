package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status: queued work, conflicts, connectivity",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		probeCtx, cancel := context.WithTimeout(ctx, cfg.Daemon.ProbeTimeout)
		pingErr := newClient().Ping(probeCtx)
		cancel()
		if pingErr == nil {
			fmt.Printf("backend:  %s (%s)\n", ui.RenderPass("online"), cfg.Server.URL)
		} else {
			fmt.Printf("backend:  %s (%s)\n", ui.RenderError("offline"), cfg.Server.URL)
		}

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			fail("%v", err)
		}
		total := 0
		for _, c := range counts {
			total += c
		}
		fmt.Printf("notes:    %d\n", total)

		queued, err := st.OutboxLen(ctx)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("queued:   %d\n", queued)

		if queued > 0 {
			entries, err := st.ListOutbox(ctx)
			if err != nil {
				fail("%v", err)
			}
			for _, e := range entries {
				fmt.Printf("   %-6s %s %s\n", e.Op, ui.RenderFaint(e.NoteID),
					ui.RenderFaint(fmt.Sprintf("(attempt %d)", e.Attempts)))
			}
		}

		if conflicted := counts[note.StatusConflicted]; conflicted > 0 {
			fmt.Printf("%s %d note(s) need attention:\n", ui.RenderError("!"), conflicted)
			notes, err := st.ListByStatus(ctx, note.StatusConflicted)
			if err != nil {
				fail("%v", err)
			}
			for _, n := range notes {
				reason := "conflicting edits"
				if n.AttentionReason != "" {
					reason = n.AttentionReason
				}
				fmt.Printf("   %s %s %s\n", ui.RenderAccent(n.ID), n.Title, ui.RenderFaint("("+reason+")"))
			}
			fmt.Println(ui.RenderFaint("Run 'brainbox resolve <id>' to settle them."))
		}

		if lastPull, err := st.LastPullAt(ctx); err == nil && !lastPull.IsZero() {
			fmt.Printf("pulled:   %s\n", lastPull.Local().Format("2006-01-02 15:04:05"))
		}
	},
}
