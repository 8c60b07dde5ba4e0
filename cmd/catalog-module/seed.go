package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
)

var seedBooks int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Заполнить каталог демонстрационными данными",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if seedBooks < 0 {
			return fmt.Errorf("--books не может быть отрицательным: %d", seedBooks)
		}
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
		pool, err := database.Connect(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		return database.Seed(cmd.Context(), repository.NewPool(pool), cfg.AssetDir, seedBooks, logger)
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedBooks, "books", 1000, "количество сгенерированных книг")
}
