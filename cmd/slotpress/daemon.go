package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/slotpress/slotpress/internal/scheduler"
	"github.com/slotpress/slotpress/internal/server"
)

func daemonCMD() *cobra.Command {
	var cfgPath string

	var daemon = &cobra.Command{
		Use:   "daemon",
		Short: "Run the continuous article production loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.catalog == nil {
				return fmt.Errorf("the daemon requires the game catalog (catalog.postgres)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.New(os.Stdout, "[DAEMON] ", log.LstdFlags)

			// Classify providers the tier book has not seen before the
			// rotation is built from it.
			if counts, err := a.catalog.ProviderCounts(ctx); err == nil {
				providers := make([]string, 0, len(counts))
				for _, c := range counts {
					providers = append(providers, c.Provider)
				}
				if err := a.tiers.EnsureClassified(ctx, a.prov, providers); err != nil {
					logger.Printf("ERROR: tier classification: %v", err)
				}
			} else {
				logger.Printf("ERROR: listing providers: %v", err)
			}

			var rdb *redis.Client
			if addr := a.cfg.Scheduler.Redis.Addr; addr != "" {
				rdb = redis.NewClient(&redis.Options{
					Addr:     addr,
					Password: a.cfg.Scheduler.Redis.Password,
					DB:       a.cfg.Scheduler.Redis.DB,
				})
				defer rdb.Close()
			}

			var publisher scheduler.Publisher
			if a.publisher.Configured() {
				publisher = a.publisher
			}

			d := &scheduler.Daemon{
				Cfg:       a.cfg.Scheduler,
				OutputDir: a.cfg.General.OutputDir,
				Games:     a.catalog,
				Tiers:     a.tiers,
				Pipeline:  a.runFunc(),
				Publisher: publisher,
				Images:    a.prov,
				Notifier:  a.notifier,
				Rdb:       rdb,
				Logger:    logger,
			}

			if addr := a.cfg.Server.Address; addr != "" {
				ops := server.NewOps(addr, d, logger)
				ops.Start()
				defer func() { _ = ops.Shutdown(context.Background()) }()
			}

			err = d.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Printf("daemon stopped")
				return nil
			}
			return err
		},
	}
	daemon.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return daemon
}
