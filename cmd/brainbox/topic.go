package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/ui"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Browse and create topics",
	Long: `Work with the topic tree.

Topics are owned by the server: creating one requires connectivity and
takes effect immediately, it is never queued. The local copy of the tree
is a read-only cache refreshed on every sync.`,
}

var topicListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the cached topic tree",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		topics, err := st.ListTopics(ctx)
		if err != nil {
			fail("%v", err)
		}
		if len(topics) == 0 {
			fmt.Println(ui.RenderFaint("No topics cached. Run 'brainbox sync' while online."))
			return
		}
		printTopicTree(topics)
	},
}

// printTopicTree renders topics as an indented tree.
func printTopicTree(topics []note.Topic) {
	children := make(map[int64][]note.Topic)
	var roots []note.Topic
	for _, t := range topics {
		if t.ParentID == nil {
			roots = append(roots, t)
		} else {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		}
	}
	var walk func(t note.Topic, depth int)
	walk = func(t note.Topic, depth int) {
		for i := 0; i < depth; i++ {
			fmt.Print("  ")
		}
		fmt.Printf("%s %s\n", ui.RenderFaint(fmt.Sprintf("[%d]", t.ID)), t.Name)
		for _, c := range children[t.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
}

var topicAddParent int64

var topicAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a topic on the server (online only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := newClient()

		req := api.TopicRequest{Name: args[0]}
		if topicAddParent > 0 {
			req.ParentID = &topicAddParent
		}
		t, err := client.CreateTopic(ctx, req)
		if err != nil {
			if api.IsRetryable(err) {
				fail("cannot reach the server; topics can only be created online (%v)", err)
			}
			fail("%v", err)
		}
		fmt.Printf("%s Created topic %s (id %d)\n", ui.RenderPass("✓"), ui.RenderAccent(t.Name), t.ID)

		// Refresh the cache so the new topic is usable immediately.
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()
		if res, err := client.Pull(ctx, time.Time{}); err == nil && len(res.Topics) > 0 {
			if err := st.ReplaceTopics(ctx, res.Topics); err != nil {
				fmt.Println(ui.RenderWarn("Warning: topic cache refresh failed; it will catch up on the next sync."))
			}
		}
	},
}

func init() {
	topicAddCmd.Flags().Int64VarP(&topicAddParent, "parent", "p", 0, "parent topic id (0 = top level)")
	topicCmd.AddCommand(topicListCmd)
	topicCmd.AddCommand(topicAddCmd)
}
