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
	"github.com/lightkeepers/fieldsync/internal/logger"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the outbox publisher and retention sweep without the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		c, err := buildCore(cfg)
		if err != nil {
			return err
		}
		defer c.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go c.publisher.Run(ctx)
		go c.retention.Run(ctx)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("signal received: %s, shutting down...", sig)

		return nil
	},
}
