package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightkeepers/fieldsync/internal/config"
	httpSrv "github.com/lightkeepers/fieldsync/internal/http"
	"github.com/lightkeepers/fieldsync/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server with outbox publisher and retention sweep",
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
		go c.drainer.Run(ctx)

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			OutboxRepo: c.outboxRepo,
			Publisher:  c.publisher,
			Queue:      c.queue,
			Creds:      c.creds,
			Redis:      c.redis,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
