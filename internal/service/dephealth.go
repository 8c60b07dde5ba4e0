// dephealth.go — наблюдение за PostgreSQL каталога через topologymetrics.
// Состояние публикуется на /metrics рядом с метриками HTTP и кэша
// (app_dependency_health, app_dependency_latency_seconds, ...).
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// catalogDBName — имя зависимости в метриках.
const catalogDBName = "catalog-db"

// MonitorConfig — параметры наблюдения за базой каталога.
type MonitorConfig struct {
	// ServiceID — вершина графа зависимостей (config.ServiceName)
	ServiceID string
	// Group — группа в метриках (CM_DEPHEALTH_GROUP)
	Group string
	// DatabaseURL — адрес базы только для лейблов host/port, не для подключения
	DatabaseURL string
	// Interval — период проверки (CM_DEPHEALTH_CHECK_INTERVAL)
	Interval time.Duration
	// Registerer — куда регистрировать метрики; nil — глобальный registry
	Registerer prometheus.Registerer
}

// DependencyMonitor периодически проверяет базу каталога.
type DependencyMonitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDependencyMonitor создаёт монитор. Проверка идёт через db поверх
// того же pgxpool, что обслуживает запросы, поэтому исчерпание пула
// тоже отражается в метриках. База помечена критичной.
func NewDependencyMonitor(cfg MonitorConfig, db *sql.DB, logger *slog.Logger) (*DependencyMonitor, error) {
	if db == nil {
		return nil, errors.New("dephealth: не задано подключение к базе каталога")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("dephealth: период проверки должен быть > 0")
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(catalogDBName, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(cfg.DatabaseURL),
			dephealth.CheckInterval(cfg.Interval),
			dephealth.Critical(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}
	return &DependencyMonitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "dependency_monitor")),
	}, nil
}

// Start запускает проверки в фоне до Stop или отмены ctx.
func (m *DependencyMonitor) Start(ctx context.Context) error {
	if err := m.dh.Start(ctx); err != nil {
		return err
	}
	m.logger.Info("Наблюдение за базой каталога запущено",
		slog.String("dependency", catalogDBName),
	)
	return nil
}

// Stop останавливает проверки.
func (m *DependencyMonitor) Stop() {
	m.dh.Stop()
	m.logger.Info("Наблюдение за базой каталога остановлено")
}
