package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/catalog-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/catalog-module/internal/config"
	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
	"github.com/bigkaa/goartstore/catalog-module/internal/server"
	"github.com/bigkaa/goartstore/catalog-module/internal/service"
	"github.com/bigkaa/goartstore/catalog-module/internal/storage/filestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API (команда по умолчанию)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger.Info("Catalog Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 1. Миграции и пул PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Проверка здоровья PostgreSQL идёт через тот же пул соединений
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 2. Файлы ассетов и кэш ответов
	files, err := filestore.New(cfg.AssetDir, cfg.StagingDir)
	if err != nil {
		return fmt.Errorf("ошибка инициализации каталога ассетов: %w", err)
	}
	cache, err := service.NewQueryCache(cfg.CacheDir, cfg.CacheMemorySize, cfg.CacheTTL, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации кэша: %w", err)
	}
	defer cache.Wait()

	// 3. Сервисный слой
	dbPool := repository.NewPool(pool)
	writer := service.NewAssetWriter(dbPool, files, logger)
	catalog := service.NewCatalogService(dbPool, writer, cache, cfg.AssetURLPrefix, logger)

	// 4. Фоновые задачи
	janitor := service.NewCacheJanitor(cache, files, cfg.StagingTTL, cfg.JanitorInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	monitor, err := service.NewDependencyMonitor(service.MonitorConfig{
		ServiceID:   config.ServiceName,
		Group:       cfg.DephealthGroup,
		DatabaseURL: cfg.DatabaseURL("postgres"),
		Interval:    cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := monitor.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer monitor.Stop()
	}

	// 5. HTTP-сервер
	router := server.NewRouter(cfg, logger, server.Routes{
		Catalog:  handlers.NewCatalogHandler(catalog, files, cfg.MaxUploadSize, logger),
		Health:   handlers.NewHealthHandler(database.NewReadinessChecker(pool)),
		Cache:    cache,
		AssetDir: files.AssetDir(),
	})
	if err := server.New(cfg, logger, router).Run(ctx); err != nil {
		return err
	}

	logger.Info("Catalog Module остановлен")
	return nil
}
