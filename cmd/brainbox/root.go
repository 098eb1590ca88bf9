// Command brainbox is the offline-first client for the Brain Box
// note-taking backend. All note mutations land in the local store first
// and are pushed by the sync engine when connectivity allows.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/config"
	"github.com/ryakosh/brain-box/internal/store"
	"github.com/ryakosh/brain-box/internal/syncer"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "brainbox",
	Short: "Offline-first notes for the Brain Box backend",
	Long: `brainbox keeps your learning notes available and editable offline.

Every create, edit, and delete is written to a local SQLite store and
queued for the backend; the sync engine pushes queued work whenever the
server is reachable. Conflicting edits are never merged silently: both
versions are kept until you resolve them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./brainbox.yaml, then the user config dir)")
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// openStore opens the configured database, surfacing corruption with a
// recovery hint.
func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.CheckIntegrity(ctx); err != nil {
		st.Close()
		if errors.Is(err, store.ErrCorrupt) {
			return nil, fmt.Errorf("%w: export a snapshot from a backup, delete %s, then run 'brainbox import'",
				err, cfg.Database.Path)
		}
		return nil, err
	}
	return st, nil
}

// newClient builds a backend client from the loaded config.
func newClient() *api.Client {
	return api.New(cfg.Server.URL, cfg.Server.Timeout, nil)
}

// newEngine builds a one-shot sync engine for foreground commands.
func newEngine(st *store.Store, client *api.Client) *syncer.Engine {
	return syncer.New(st, client, syncer.Config{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BackoffBase: cfg.Sync.BackoffBase,
		BackoffCap:  cfg.Sync.BackoffCap,
		SendTimeout: cfg.Sync.SendTimeout,
	}, nil, nil)
}

// fail prints an error and exits, matching the style of every command.
func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
