// Пакет server — HTTP-сервер Catalog Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/goartstore/catalog-module/internal/api/errors"
	"github.com/bigkaa/goartstore/catalog-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/catalog-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/catalog-module/internal/config"
	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
)

// Routes — зависимости маршрутов.
type Routes struct {
	Catalog *handlers.CatalogHandler
	Health  *handlers.HealthHandler
	// Cache — кэш ответов списков (nil — без кэша)
	Cache middleware.ResponseCache
	// AssetDir — каталог ассетов, раздаётся по cfg.AssetURLPrefix
	AssetDir string
}

// NewRouter собирает chi-роутер: API сущностей, health, метрики и статику.
func NewRouter(cfg *config.Config, logger *slog.Logger, routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		middleware.Recoverer(logger),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	r.Get("/health/live", routes.Health.HealthLive)
	r.Get("/health/ready", routes.Health.HealthReady)
	r.Get("/metrics", routes.Health.GetMetrics)

	// Общий лимит записи на все сущности
	writes := func(h http.Handler) http.Handler { return h }
	if cfg.WriteRateLimit > 0 {
		writes = middleware.WriteRateLimit(middleware.NewWriteLimiter(cfg.WriteRateLimit, cfg.WriteRateBurst))
	}

	r.Route("/api/v1", func(api chi.Router) {
		for _, e := range model.Entities {
			api.Route("/"+e.Name, func(er chi.Router) {
				list := http.Handler(routes.Catalog.List(e))
				if routes.Cache != nil {
					list = middleware.Cache(routes.Cache, e.Name, e.CacheKeys, cfg.CacheTTLFor(e.Name))(list)
				}
				er.Method(http.MethodGet, "/", list)
				er.Get("/{id}", routes.Catalog.Get(e))
				er.Group(func(w chi.Router) {
					w.Use(writes)
					w.Post("/", routes.Catalog.Create(e))
					w.Patch("/{id}", routes.Catalog.Update(e))
				})
			})
		}
	})

	if routes.AssetDir != "" {
		prefix := cfg.AssetURLPrefix
		files := http.StripPrefix(prefix+"/", http.FileServer(noDirFS{http.Dir(routes.AssetDir)}))
		r.Handle(prefix+"/*", files)
	}

	return r
}

// noDirFS скрывает листинг каталога ассетов.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// Server — HTTP-сервер Catalog Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с таймаутами из конфигурации.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает SIGINT/SIGTERM или отмены ctx,
// после чего выполняет graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
