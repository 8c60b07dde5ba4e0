// Пакет config — загрузка и валидация конфигурации Catalog Module
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// ServiceName — имя сервиса в логах и метриках зависимостей.
const ServiceName = "catalog-module"

// Config содержит все параметры конфигурации Catalog Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- Файлы ассетов ---

	// Каталог опубликованных файлов
	AssetDir string
	// Каталог временных загрузок
	StagingDir string
	// Публичный URL-префикс файлов (отдаются сервером по этому пути)
	AssetURLPrefix string
	// Максимальный размер тела запроса с файлом, байт
	MaxUploadSize int64
	// Возраст, после которого брошенная загрузка удаляется
	StagingTTL time.Duration

	// --- Ограничение записи ---

	// Допустимая частота POST/PATCH с одного адреса, запросов/с (0 — без ограничения)
	WriteRateLimit float64
	// Размер всплеска для WriteRateLimit
	WriteRateBurst int

	// --- Кэш запросов ---

	// Каталог файлового кэша
	CacheDir string
	// TTL записи кэша по умолчанию
	CacheTTL time.Duration
	// TTL по маршрутам (сущностям), переопределяют CacheTTL
	CacheRouteTTL map[string]time.Duration
	// Размер in-memory LRU перед диском (0 — отключён)
	CacheMemorySize int
	// Интервал фоновой очистки кэша и staging
	JanitorInterval time.Duration

	// --- Мониторинг зависимостей ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("CM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	// CM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	// CM_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("CM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_READ_TIMEOUT: %w", err)
	}

	// CM_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("CM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// CM_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("CM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// CM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_PORT: %w", err)
	}

	// CM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CM_DB_USER")
	if err != nil {
		return nil, err
	}

	// CM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CM_DB_MAX_CONNS — размер пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("CM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("CM_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}

	// --- Файлы ассетов ---

	// CM_ASSET_DIR — каталог файлов (по умолчанию ./data/assets)
	cfg.AssetDir = getEnvDefault("CM_ASSET_DIR", "./data/assets")

	// CM_STAGING_DIR — каталог загрузок (по умолчанию ./data/staging)
	cfg.StagingDir = getEnvDefault("CM_STAGING_DIR", "./data/staging")

	// CM_ASSET_URL_PREFIX — публичный префикс (по умолчанию /uploads)
	cfg.AssetURLPrefix = "/" + strings.Trim(getEnvDefault("CM_ASSET_URL_PREFIX", "/uploads"), "/")
	if cfg.AssetURLPrefix == "/" {
		return nil, fmt.Errorf("CM_ASSET_URL_PREFIX: префикс не может быть корнем")
	}

	// CM_MAX_UPLOAD_SIZE — лимит тела запроса с файлом (по умолчанию 10 MiB)
	maxUpload, err := getEnvInt("CM_MAX_UPLOAD_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("CM_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("CM_MAX_UPLOAD_SIZE: значение должно быть > 0")
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// CM_STAGING_TTL — возраст брошенной загрузки (по умолчанию 1h)
	cfg.StagingTTL, err = getEnvDurationFallback("CM_STAGING_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CM_STAGING_TTL: %w", err)
	}

	// --- Ограничение записи ---

	// CM_WRITE_RATE_LIMIT — запросов/с на адрес клиента (по умолчанию 0, выключено)
	cfg.WriteRateLimit, err = getEnvFloat("CM_WRITE_RATE_LIMIT", 0)
	if err != nil {
		return nil, fmt.Errorf("CM_WRITE_RATE_LIMIT: %w", err)
	}
	if cfg.WriteRateLimit < 0 {
		return nil, fmt.Errorf("CM_WRITE_RATE_LIMIT: значение должно быть >= 0")
	}

	// CM_WRITE_RATE_BURST — всплеск (по умолчанию 10)
	cfg.WriteRateBurst, err = getEnvInt("CM_WRITE_RATE_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("CM_WRITE_RATE_BURST: %w", err)
	}
	if cfg.WriteRateBurst <= 0 {
		return nil, fmt.Errorf("CM_WRITE_RATE_BURST: значение должно быть > 0")
	}

	// --- Кэш запросов ---

	// CM_CACHE_DIR — каталог кэша (по умолчанию ./data/cache)
	cfg.CacheDir = getEnvDefault("CM_CACHE_DIR", "./data/cache")

	// CM_CACHE_TTL — TTL по умолчанию (60s)
	cfg.CacheTTL, err = getEnvDurationFallback("CM_CACHE_TTL", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_CACHE_TTL: %w", err)
	}

	// CM_CACHE_ROUTE_TTL — TTL по маршрутам: "author=30s,book=2m"
	cfg.CacheRouteTTL, err = parseRouteTTL(getEnvDefault("CM_CACHE_ROUTE_TTL", ""))
	if err != nil {
		return nil, fmt.Errorf("CM_CACHE_ROUTE_TTL: %w", err)
	}

	// CM_CACHE_MEMORY_SIZE — размер in-memory LRU (по умолчанию 1024)
	cfg.CacheMemorySize, err = getEnvInt("CM_CACHE_MEMORY_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("CM_CACHE_MEMORY_SIZE: %w", err)
	}
	if cfg.CacheMemorySize < 0 {
		return nil, fmt.Errorf("CM_CACHE_MEMORY_SIZE: значение должно быть >= 0")
	}

	// CM_CACHE_JANITOR_INTERVAL — интервал очистки (по умолчанию 5m)
	cfg.JanitorInterval, err = getEnvDurationFallback("CM_CACHE_JANITOR_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_CACHE_JANITOR_INTERVAL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// CM_DEPHEALTH_GROUP — группа в метриках (по умолчанию catalog)
	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "catalog")

	// CM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDurationFallback("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения со схемой scheme
// ("pgx5" для golang-migrate, "postgres" для лейблов dephealth).
// Пароль экранируется.
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// CacheTTLFor возвращает TTL кэша маршрута с учётом переопределений.
func (c *Config) CacheTTLFor(route string) time.Duration {
	if ttl, ok := c.CacheRouteTTL[route]; ok {
		return ttl
	}
	return c.CacheTTL
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Формат text — цветной вывод tint, если stdout является терминалом.
func SetupLogger(cfg *Config) *slog.Logger {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	logger := slog.New(newHandler(colorable.NewColorable(os.Stdout), color, cfg))
	slog.SetDefault(logger)
	return logger
}

// newHandler создаёт slog.Handler для формата из конфигурации.
func newHandler(w io.Writer, color bool, cfg *Config) slog.Handler {
	if cfg.LogFormat == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
		NoColor:    !color,
	})
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationFallback возвращает time.Duration из переменной окружения.
// Если переменная не задана, используется fallbackVal.
// Если задана — парсится и валидируется (> 0).
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	return parsePositiveDuration(val)
}

// parsePositiveDuration разбирает длительность > 0.
func parsePositiveDuration(val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// parseRouteTTL разбирает "route=ttl,route=ttl" в отображение.
func parseRouteTTL(s string) (map[string]time.Duration, error) {
	result := make(map[string]time.Duration)
	for _, item := range parseCSV(s) {
		route, ttl, ok := strings.Cut(item, "=")
		route = strings.TrimSpace(route)
		if !ok || route == "" {
			return nil, fmt.Errorf("некорректный элемент %q, ожидается route=ttl", item)
		}
		d, err := parsePositiveDuration(strings.TrimSpace(ttl))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", route, err)
		}
		result[route] = d
	}
	return result, nil
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
