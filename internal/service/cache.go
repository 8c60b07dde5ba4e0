// Пакет service — бизнес-логика Catalog Module.
// QueryCache — файловый TTL-кэш ответов на запросы списков.
// Перед диском стоит in-memory LRU (hashicorp/golang-lru/v2/expirable).
package service

import (
	"crypto/md5" //nolint:gosec // ключ кэша, не криптография
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_cache_hits_total",
		Help: "Общее количество попаданий в кэш запросов.",
	}, []string{"prefix"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_cache_misses_total",
		Help: "Общее количество промахов кэша запросов.",
	}, []string{"prefix"})
	cacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_cache_invalidations_total",
		Help: "Общее количество сбросов префикса кэша.",
	}, []string{"prefix"})
)

// tmpPrefix — префикс временных файлов записи кэша.
const tmpPrefix = ".tmp-"

// cacheEntry — содержимое файла кэша.
type cacheEntry struct {
	// Data — тело ответа как есть
	Data json.RawMessage `json:"data"`
	// Exp — момент истечения, мс с начала эпохи
	Exp int64 `json:"exp"`
}

// expired сообщает, истекла ли запись к моменту now.
func (e cacheEntry) expired(now time.Time) bool {
	return e.Exp <= now.UnixMilli()
}

// QueryCache — кэш тел ответов, разложенный по префиксам
// (<dir>/<prefix>/<key>). Ошибки кэша никогда не выходят наружу:
// они логируются, а операция считается промахом.
type QueryCache struct {
	dir    string
	memo   *expirable.LRU[string, cacheEntry]
	logger *slog.Logger
	now    func() time.Time

	// wg — незавершённые StoreAsync
	wg sync.WaitGroup
}

// NewQueryCache создаёт кэш в директории dir.
// memorySize — размер in-memory LRU (0 — без него), memoryTTL — его TTL.
// Записи из LRU всё равно проверяются по собственному exp.
func NewQueryCache(dir string, memorySize int, memoryTTL time.Duration, logger *slog.Logger) (*QueryCache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	c := &QueryCache{
		dir:    dir,
		logger: logger.With(slog.String("component", "query_cache")),
		now:    time.Now,
	}
	if memorySize > 0 {
		c.memo = expirable.NewLRU[string, cacheEntry](memorySize, nil, memoryTTL)
	}
	return c, nil
}

// Dir возвращает корневую директорию кэша.
func (c *QueryCache) Dir() string {
	return c.dir
}

// Key вычисляет ключ кэша: параметры из allowedKeys (по базовому имени,
// id[gt] относится к id) сортируются, сериализуются в JSON [[k, v], ...],
// от результата берётся MD5 в base64url. Порядок параметров в запросе
// на ключ не влияет.
func Key(allowedKeys []string, params url.Values) string {
	pairs := make([][2]string, 0, len(params))
	for k, values := range params {
		base, _, _ := strings.Cut(k, "[")
		if !slices.Contains(allowedKeys, base) {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, [2]string{k, v})
		}
	}
	slices.SortFunc(pairs, func(a, b [2]string) int {
		if c := strings.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return strings.Compare(a[1], b[1])
	})

	// Сериализация [][2]string не может завершиться ошибкой
	raw, _ := json.Marshal(pairs)
	sum := md5.Sum(raw) //nolint:gosec // ключ кэша, не криптография
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Lookup ищет ответ для запроса. Возвращает ключ (нужен для Store)
// и тело при попадании. Просроченная запись — промах; нечитаемая
// запись — промах с удалением файла.
func (c *QueryCache) Lookup(prefix string, allowedKeys []string, params url.Values) (key string, body []byte, ok bool) {
	key = Key(allowedKeys, params)
	now := c.now()

	if c.memo != nil {
		if entry, found := c.memo.Get(memoKey(prefix, key)); found {
			if !entry.expired(now) {
				cacheHitsTotal.WithLabelValues(prefix).Inc()
				return key, entry.Data, true
			}
			c.memo.Remove(memoKey(prefix, key))
		}
	}

	entry, err := c.read(c.entryPath(prefix, key))
	if err != nil {
		cacheMissesTotal.WithLabelValues(prefix).Inc()
		return key, nil, false
	}
	if entry.expired(now) {
		cacheMissesTotal.WithLabelValues(prefix).Inc()
		return key, nil, false
	}

	if c.memo != nil {
		c.memo.Add(memoKey(prefix, key), entry)
	}
	cacheHitsTotal.WithLabelValues(prefix).Inc()
	return key, entry.Data, true
}

// read читает запись с диска. Повреждённый файл удаляется.
func (c *QueryCache) read(path string) (cacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Ошибка чтения записи кэша",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			c.remove(path)
		}
		return cacheEntry{}, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Повреждённая запись кэша удалена",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		c.remove(path)
		return cacheEntry{}, err
	}
	return entry, nil
}

// Store сохраняет тело ответа под ключом на ttl.
// Запись атомарна (temp файл → rename); ошибки логируются и поглощаются.
func (c *QueryCache) Store(prefix, key string, body []byte, ttl time.Duration) {
	entry := cacheEntry{
		Data: json.RawMessage(body),
		Exp:  c.now().Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("Тело ответа не сериализуется в запись кэша",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		return
	}

	dir := filepath.Join(c.dir, prefix)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		c.logger.Warn("Ошибка создания директории кэша",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := writeAtomic(dir, key, data); err != nil {
		c.logger.Warn("Ошибка записи кэша",
			slog.String("prefix", prefix),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	if c.memo != nil {
		c.memo.Add(memoKey(prefix, key), entry)
	}
}

// StoreAsync выполняет Store в отдельной горутине, не задерживая ответ.
// При гонке двух записей одного ключа побеждает последняя.
func (c *QueryCache) StoreAsync(prefix, key string, body []byte, ttl time.Duration) {
	data := slices.Clone(body)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Store(prefix, key, data, ttl)
	}()
}

// Wait дожидается завершения всех StoreAsync.
func (c *QueryCache) Wait() {
	c.wg.Wait()
}

// Invalidate удаляет все записи префикса из памяти и с диска.
// Сама директория префикса сохраняется. Ошибки логируются.
func (c *QueryCache) Invalidate(prefix string) {
	cacheInvalidationsTotal.WithLabelValues(prefix).Inc()

	if c.memo != nil {
		scope := prefix + "/"
		for _, k := range c.memo.Keys() {
			if strings.HasPrefix(k, scope) {
				c.memo.Remove(k)
			}
		}
	}

	dir := filepath.Join(c.dir, prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Error("Ошибка чтения директории кэша",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			c.logger.Error("Ошибка удаления записи кэша",
				slog.String("path", filepath.Join(dir, e.Name())),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Debug("Префикс кэша сброшен", slog.String("prefix", prefix))
}

// entryPath — путь файла записи.
func (c *QueryCache) entryPath(prefix, key string) string {
	return filepath.Join(c.dir, prefix, key)
}

// remove удаляет файл записи, отсутствие файла не ошибка.
func (c *QueryCache) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("Ошибка удаления записи кэша",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// memoKey — ключ in-memory LRU.
func memoKey(prefix, key string) string {
	return prefix + "/" + key
}

// writeAtomic записывает data в dir/name через временный файл и rename.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
