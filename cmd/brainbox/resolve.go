package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/reconcile"
	"github.com/ryakosh/brain-box/internal/ui"
)

var (
	resolveAcceptLocal  bool
	resolveAcceptRemote bool
	resolveTitle        string
	resolveBody         string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a conflicted note",
	Long: `Resolve a note parked in the conflicted state.

Without flags an interactive picker shows both versions and asks which
to keep (or lets you enter merged content). With --accept-local,
--accept-remote, or --title/--body the choice is applied directly.

The chosen content is re-queued for the backend as a fresh operation
based on the server's current revision.`,
	Args: cobra.ExactArgs(1),
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
		if !n.Conflicted() {
			fail("note %s is not conflicted (status: %s)", n.ID, n.Status)
		}

		choice, mergedTitle, mergedBody, err := resolveChoice(n)
		if err != nil {
			fail("%v", err)
		}

		title, body, err := reconcile.Resolution(choice, n, mergedTitle, mergedBody)
		if err != nil {
			fail("%v", err)
		}

		resolved, err := st.ResolveConflict(ctx, n.ID, title, body)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Resolved note %s (%s); change queued for backend\n",
			ui.RenderPass("✓"), ui.RenderAccent(resolved.ID), ui.StatusBadge(resolved.Status))
	},
}

// resolveChoice determines the resolution from flags, falling back to an
// interactive form.
func resolveChoice(n *note.Note) (reconcile.Choice, string, string, error) {
	switch {
	case resolveAcceptLocal && resolveAcceptRemote:
		return "", "", "", fmt.Errorf("--accept-local and --accept-remote are mutually exclusive")
	case resolveAcceptLocal:
		return reconcile.ChoiceAcceptLocal, "", "", nil
	case resolveAcceptRemote:
		return reconcile.ChoiceAcceptRemote, "", "", nil
	case resolveTitle != "":
		return reconcile.ChoiceMerge, resolveTitle, resolveBody, nil
	}
	return promptChoice(n)
}

// promptChoice runs the interactive resolution form.
func promptChoice(n *note.Note) (reconcile.Choice, string, string, error) {
	fmt.Printf("%s\n", ui.RenderTitle("Local version"))
	fmt.Printf("  %s\n", n.Title)
	if n.Body != "" {
		fmt.Printf("  %s\n", ui.RenderFaint(n.Body))
	}
	fmt.Printf("%s\n", ui.RenderTitle("Server version"))
	if n.RemoteTitle == "" && n.RemoteRevision == 0 {
		fmt.Printf("  %s\n", ui.RenderFaint("(none recorded: "+n.AttentionReason+")"))
	} else {
		fmt.Printf("  %s\n", n.RemoteTitle)
		if n.RemoteBody != "" {
			fmt.Printf("  %s\n", ui.RenderFaint(n.RemoteBody))
		}
	}

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which version should win?").
			Options(
				huh.NewOption("Keep my version", string(reconcile.ChoiceAcceptLocal)),
				huh.NewOption("Take the server's version", string(reconcile.ChoiceAcceptRemote)),
				huh.NewOption("Merge by hand", string(reconcile.ChoiceMerge)),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return "", "", "", err
	}

	if reconcile.Choice(choice) != reconcile.ChoiceMerge {
		return reconcile.Choice(choice), "", "", nil
	}

	mergedTitle := n.Title
	mergedBody := n.Body
	merge := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Title").Value(&mergedTitle),
		huh.NewText().Title("Body").Value(&mergedBody),
	))
	if err := merge.Run(); err != nil {
		return "", "", "", err
	}
	return reconcile.ChoiceMerge, mergedTitle, mergedBody, nil
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveAcceptLocal, "accept-local", false, "keep the local version")
	resolveCmd.Flags().BoolVar(&resolveAcceptRemote, "accept-remote", false, "take the server's version")
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "merged title (with --body, skips the prompt)")
	resolveCmd.Flags().StringVar(&resolveBody, "body", "", "merged body")
}
