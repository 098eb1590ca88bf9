package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/migrate"
	"github.com/ryakosh/brain-box/internal/store"
	"github.com/ryakosh/brain-box/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export notes, topics, and queued changes to a JSONL snapshot",
	Long: `Export the local store as JSONL: one record per line, topics first,
then notes with their queued operations attached.

This is the recovery path for a corrupt database: export what is
readable, delete the database file, and run 'brainbox import'. It also
doubles as a plain backup.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		// Export intentionally skips the integrity check: it must be able
		// to read whatever survives in a damaged database.
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		res, err := migrate.ExportFile(ctx, st, args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Exported %d topic(s), %d note(s), %d queued change(s) to %s\n",
			ui.RenderPass("✓"), res.Topics, res.Notes, res.Pending, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSONL snapshot into a fresh database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()

		if n, err := st.ListNotes(ctx, 0); err == nil && len(n) > 0 {
			fail("database at %s is not empty; import only targets a fresh database", cfg.Database.Path)
		}

		res, err := migrate.ImportFile(ctx, st, args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Imported %d topic(s), %d note(s), %d queued change(s)\n",
			ui.RenderPass("✓"), res.Topics, res.Notes, res.Pending)
		for _, e := range res.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("skipped:"), e)
		}
	},
}
