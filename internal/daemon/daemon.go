// Package daemon wires the sync core together for background operation.
//
// The daemon:
// 1. Opens the local store and verifies its integrity
// 2. Monitors backend connectivity
// 3. Runs the sync engine, triggering it on connectivity regained and
//    on a periodic poll tick
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/config"
	"github.com/ryakosh/brain-box/internal/netmon"
	"github.com/ryakosh/brain-box/internal/store"
	"github.com/ryakosh/brain-box/internal/syncer"
)

// Daemon owns the long-running sync components.
type Daemon struct {
	cfg     *config.Config
	store   *store.Store
	client  *api.Client
	monitor *netmon.Monitor
	engine  *syncer.Engine
	logger  *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a daemon from configuration. The store is opened (and its
// integrity checked) here so a corrupt database fails fast with a
// recovery hint instead of surfacing mid-run.
func New(cfg *config.Config) (*Daemon, error) {
	logger := NewLogger(cfg.Logging, "[daemon] ")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.CheckIntegrity(context.Background()); err != nil {
		st.Close()
		if errors.Is(err, store.ErrCorrupt) {
			return nil, fmt.Errorf("%w: run 'brainbox export' against a backup, recreate the database, then 'brainbox import'", err)
		}
		return nil, err
	}

	client := api.New(cfg.Server.URL, cfg.Server.Timeout, NewLogger(cfg.Logging, "[api] "))
	monitor := netmon.New(client.Ping, cfg.Daemon.ProbeInterval, cfg.Daemon.ProbeTimeout,
		NewLogger(cfg.Logging, "[netmon] "))
	engine := syncer.New(st, client, syncer.Config{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BackoffBase: cfg.Sync.BackoffBase,
		BackoffCap:  cfg.Sync.BackoffCap,
		SendTimeout: cfg.Sync.SendTimeout,
	}, nil, NewLogger(cfg.Logging, "[sync] "))

	return &Daemon{
		cfg:     cfg,
		store:   st,
		client:  client,
		monitor: monitor,
		engine:  engine,
		logger:  logger,
	}, nil
}

// Store exposes the open store for in-process callers (the CLI commands
// when running in foreground mode).
func (d *Daemon) Store() *store.Store { return d.store }

// Engine exposes the sync engine so local mutations can trigger a run.
func (d *Daemon) Engine() *syncer.Engine { return d.engine }

// Start runs the daemon until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	transitions := d.monitor.Subscribe()

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.engine.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.bridge(runCtx, transitions)
	}()

	<-runCtx.Done()
	d.logger.Println("Shutdown signal received")
	return d.Stop()
}

// Stop waits for the background goroutines and closes the store.
func (d *Daemon) Stop() error {
	d.logger.Println("Stopping daemon")
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	if err := d.store.Close(); err != nil {
		d.logger.Printf("Error closing store: %v", err)
		return err
	}
	d.logger.Println("Daemon stopped")
	return nil
}

// bridge feeds connectivity transitions into the engine and fires the
// periodic poll so server-side changes land even when nothing local
// happens.
func (d *Daemon) bridge(ctx context.Context, transitions <-chan bool) {
	ticker := time.NewTicker(d.cfg.Daemon.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-transitions:
			d.engine.SetOnline(online)
		case <-ticker.C:
			if d.monitor.Online() {
				d.engine.Trigger()
			}
		}
	}
}

// NewLogger builds a logger for the given prefix. When a log file is
// configured output goes both there (size-rotated) and to stderr.
func NewLogger(cfg config.LoggingConfig, prefix string) *log.Logger {
	if cfg.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return log.New(io.MultiWriter(os.Stderr, rotator), prefix, log.LstdFlags)
}
