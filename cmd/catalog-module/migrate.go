package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/catalog-module/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции БД и выйти",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return database.Migrate(cfg, logger)
	},
}
