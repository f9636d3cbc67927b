package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/internal/catalog"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Apply game catalog database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger := log.New(os.Stdout, "[CATALOG] ", log.LstdFlags)

			dsn, err := cfg.Catalog.Postgres.DSN()
			if err != nil {
				return err
			}
			db, err := catalog.Open(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			return catalog.RunMigrations(db, migDir, logger)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "migrations", "migrations directory")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
