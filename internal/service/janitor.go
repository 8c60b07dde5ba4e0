// janitor.go — фоновая очистка файлового кэша и staging-директории.
//
// Janitor выполняет две задачи:
//  1. Удаляет просроченные и повреждённые записи кэша (Lookup удаляет
//     только повреждённые и только при обращении)
//  2. Удаляет брошенные загрузки из staging-директории
//
// Запускается как горутина с периодическим тикером (CM_CACHE_JANITOR_INTERVAL).
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики janitor
var (
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_janitor_runs_total",
		Help: "Общее количество запусков очистки кэша",
	})

	janitorRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_janitor_removed_total",
		Help: "Общее количество файлов, удалённых очисткой",
	}, []string{"kind"})

	janitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_janitor_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// StagingSweeper — очистка брошенных загрузок.
// Реализуется *filestore.FileStore.
type StagingSweeper interface {
	SweepStaging(olderThan time.Duration) (int, error)
}

// JanitorResult — результат одного запуска очистки.
type JanitorResult struct {
	// Scanned — количество просмотренных записей кэша
	Scanned int
	// ExpiredCount — удалено просроченных записей
	ExpiredCount int
	// CorruptCount — удалено повреждённых записей
	CorruptCount int
	// StagingCount — удалено брошенных загрузок
	StagingCount int
	// Errors — количество ошибок
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// CacheJanitor — сервис фоновой очистки.
type CacheJanitor struct {
	cache      *QueryCache
	staging    StagingSweeper
	stagingTTL time.Duration
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewCacheJanitor создаёт сервис очистки.
// staging может быть nil — тогда загрузки не чистятся.
func NewCacheJanitor(
	cache *QueryCache,
	staging StagingSweeper,
	stagingTTL time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *CacheJanitor {
	return &CacheJanitor{
		cache:      cache,
		staging:    staging,
		stagingTTL: stagingTTL,
		interval:   interval,
		logger:     logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (j *CacheJanitor) Start(ctx context.Context) {
	jctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(jctx)

	j.logger.Info("Очистка кэша запущена",
		slog.String("interval", j.interval.String()),
	)
}

// Stop останавливает фоновую очистку.
func (j *CacheJanitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Очистка кэша остановлена")
}

// run — основной цикл фоновой горутины.
func (j *CacheJanitor) run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (j *CacheJanitor) RunOnce() *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	result := &JanitorResult{}

	// Фаза 1: записи кэша
	j.sweepCache(result)

	// Фаза 2: брошенные загрузки
	if j.staging != nil {
		n, err := j.staging.SweepStaging(j.stagingTTL)
		if err != nil {
			j.logger.Error("Ошибка очистки staging",
				slog.String("error", err.Error()),
			)
			result.Errors++
		}
		result.StagingCount = n
	}

	result.Duration = time.Since(start)

	janitorRunsTotal.Inc()
	janitorRemovedTotal.WithLabelValues("expired").Add(float64(result.ExpiredCount))
	janitorRemovedTotal.WithLabelValues("corrupt").Add(float64(result.CorruptCount))
	janitorRemovedTotal.WithLabelValues("staging").Add(float64(result.StagingCount))
	janitorDurationSeconds.Observe(result.Duration.Seconds())

	j.logger.Info("Очистка завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("expired", result.ExpiredCount),
		slog.Int("corrupt", result.CorruptCount),
		slog.Int("staging", result.StagingCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepCache обходит директории префиксов и удаляет просроченные
// и нечитаемые записи. Временные файлы записи моложе минуты не трогаются.
func (j *CacheJanitor) sweepCache(result *JanitorResult) {
	now := j.cache.now()

	prefixes, err := os.ReadDir(j.cache.Dir())
	if err != nil {
		j.logger.Error("Ошибка чтения директории кэша",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	for _, p := range prefixes {
		if !p.IsDir() {
			continue
		}
		dir := filepath.Join(j.cache.Dir(), p.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors++
			continue
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())

			if strings.HasPrefix(e.Name(), tmpPrefix) {
				if info, err := e.Info(); err == nil && now.Sub(info.ModTime()) > time.Minute {
					j.removeFile(path, result)
				}
				continue
			}

			result.Scanned++
			data, err := os.ReadFile(path)
			if err != nil {
				result.Errors++
				continue
			}

			var entry cacheEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				if j.removeFile(path, result) {
					result.CorruptCount++
				}
				continue
			}
			if entry.expired(now) && j.removeFile(path, result) {
				result.ExpiredCount++
			}
		}
	}
}

// removeFile удаляет файл; true — файл удалён (или уже отсутствовал).
func (j *CacheJanitor) removeFile(path string, result *JanitorResult) bool {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		j.logger.Error("Ошибка удаления файла кэша",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return false
	}
	return true
}
