// Точка входа Catalog Module — каталог авторов и книг с обложками.
// Команды: serve (по умолчанию), migrate, seed, version.
// Конфигурация читается из переменных окружения CM_*.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/catalog-module/internal/config"
)

var (
	// cfg и logger заполняются в PersistentPreRunE.
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           config.ServiceName,
	Short:         "Catalog Module — каталог авторов и книг",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
		cfg = loaded
		logger = config.SetupLogger(cfg)
		return nil
	},
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать версию",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.ServiceName, config.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, versionCmd)
}
