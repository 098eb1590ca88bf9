package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Create, edit, and browse notes",
	Long: `Work with notes in the local store.

All mutations are offline-first: they complete immediately against the
local database and are queued for the backend. Run 'brainbox sync' (or
keep 'brainbox daemon' running) to push them.`,
}

var (
	noteAddTopic int64
	noteAddBody  string
)

var noteAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a note under a topic",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		n, err := st.CreateNote(ctx, noteAddTopic, args[0], readBodyFlag(noteAddBody))
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Created note %s (%s)\n",
			ui.RenderPass("✓"), ui.RenderAccent(n.ID), ui.StatusBadge(n.Status))
	},
}

var noteEditBody string

var noteEditCmd = &cobra.Command{
	Use:   "edit <id> <title>",
	Short: "Edit a note's title and body",
	Long: `Edit a note. The new content replaces the old; if an earlier edit is
still queued the two coalesce into a single pending operation.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		n, err := st.UpdateNote(ctx, args[0], args[1], readBodyFlag(noteEditBody))
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Updated note %s (%s, revision %d)\n",
			ui.RenderPass("✓"), ui.RenderAccent(n.ID), ui.StatusBadge(n.Status), n.LocalRevision)
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		queued, err := st.DeleteNote(ctx, args[0])
		if err != nil {
			fail("%v", err)
		}
		if queued {
			fmt.Printf("%s Deleted note %s (delete queued for backend)\n",
				ui.RenderPass("✓"), ui.RenderAccent(args[0]))
		} else {
			fmt.Printf("%s Deleted note %s (never synced, nothing to push)\n",
				ui.RenderPass("✓"), ui.RenderAccent(args[0]))
		}
	},
}

var noteListTopic int64

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		notes, err := st.ListNotes(ctx, noteListTopic)
		if err != nil {
			fail("%v", err)
		}
		if len(notes) == 0 {
			fmt.Println(ui.RenderFaint("No notes."))
			return
		}
		for _, n := range notes {
			fmt.Printf("%s  %-14s  %s\n",
				ui.RenderFaint(n.ID), ui.StatusBadge(n.Status), n.Title)
		}
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a note, including both versions when conflicted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		n, err := st.GetNote(ctx, args[0])
		if err != nil {
			fail("%v", err)
		}
		printNote(n)
	},
}

func printNote(n *note.Note) {
	fmt.Printf("%s\n", ui.RenderTitle(n.Title))
	fmt.Printf("id:       %s\n", ui.RenderAccent(n.ID))
	fmt.Printf("topic:    %d\n", n.TopicID)
	fmt.Printf("status:   %s\n", ui.StatusBadge(n.Status))
	fmt.Printf("revision: local %d, server %d\n", n.LocalRevision, n.ServerRevision)
	if n.Body != "" {
		fmt.Printf("\n%s\n", n.Body)
	}
	if n.Conflicted() {
		fmt.Printf("\n%s\n", ui.RenderError("── server version ──"))
		if n.AttentionReason != "" {
			fmt.Printf("%s\n", ui.RenderWarn(n.AttentionReason))
		}
		if n.RemoteRevision > 0 || n.RemoteTitle != "" {
			fmt.Printf("revision: %d\n", n.RemoteRevision)
			fmt.Printf("%s\n", ui.RenderTitle(n.RemoteTitle))
			if n.RemoteBody != "" {
				fmt.Printf("%s\n", n.RemoteBody)
			}
		}
		fmt.Printf("\n%s\n", ui.RenderFaint("Run 'brainbox resolve "+n.ID+"' to settle this conflict."))
	}
}

// readBodyFlag resolves a body flag value of "-" to stdin.
func readBodyFlag(v string) string {
	if v != "-" {
		return v
	}
	var b strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := os.Stdin.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func init() {
	noteAddCmd.Flags().Int64VarP(&noteAddTopic, "topic", "t", 0, "topic id (required)")
	noteAddCmd.Flags().StringVarP(&noteAddBody, "body", "b", "", "note body ('-' reads stdin)")
	_ = noteAddCmd.MarkFlagRequired("topic")

	noteEditCmd.Flags().StringVarP(&noteEditBody, "body", "b", "", "note body ('-' reads stdin)")

	noteListCmd.Flags().Int64VarP(&noteListTopic, "topic", "t", 0, "filter by topic id (0 = all)")

	noteCmd.AddCommand(noteAddCmd)
	noteCmd.AddCommand(noteEditCmd)
	noteCmd.AddCommand(noteRmCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteShowCmd)
}
