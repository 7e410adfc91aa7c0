package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lightkeepers/fieldsync/internal/config"
	"github.com/lightkeepers/fieldsync/internal/db"
	"github.com/lightkeepers/fieldsync/internal/devicesync"
	"github.com/lightkeepers/fieldsync/internal/logger"
)

// agentCmd runs the device-side half: a durable sync manager replaying locally
// stored mutations against the coordination API whenever connectivity allows.
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the on-device sync agent replaying queued mutations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		if cfg.DeviceSync.RemoteURL == "" {
			return fmt.Errorf("device_sync.remote_url is required")
		}

		boltDB, err := db.NewBolt(cfg.DeviceSync.StorePath)
		if err != nil {
			return err
		}
		defer boltDB.Close()

		store, err := devicesync.NewBoltStore(boltDB)
		if err != nil {
			return err
		}

		token := os.Getenv("FIELDSYNC_AGENT_TOKEN")
		remote := devicesync.NewHTTPRemote(cfg.DeviceSync.RemoteURL, cfg.DeviceSync.Timeout,
			func() string { return token })
		mgr := devicesync.NewManager(store, remote, cfg.DeviceSync.MaxAttempts)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// SIGHUP doubles as a connectivity-restored nudge.
		online := make(chan struct{}, 1)
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for range hupCh {
				select {
				case online <- struct{}{}:
				default:
				}
			}
		}()

		go mgr.Run(ctx, cfg.DeviceSync.Interval, online)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("signal received: %s, shutting down...", sig)

		return nil
	},
}
