package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/catalog-module/internal/config"
	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
	"github.com/bigkaa/goartstore/catalog-module/internal/storage/filestore"
)

// setupPostgres поднимает PostgreSQL с применёнными миграциями.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("catalog"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, _ := container.Host(ctx)
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port.Int(),
		DBName:     "catalog_test",
		DBUser:     "catalog",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
		DBMaxConns: 4,
	}
	if err := database.Migrate(cfg, testLogger()); err != nil {
		t.Fatalf("Migrate() ошибка: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() ошибка: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TestIntegration_CatalogRoundTrip проверяет запись с файлом, фильтры
// и замену файла на реальной базе.
func TestIntegration_CatalogRoundTrip(t *testing.T) {
	pg := setupPostgres(t)
	ctx := context.Background()

	root := t.TempDir()
	files, err := filestore.New(filepath.Join(root, "assets"), filepath.Join(root, "staging"))
	if err != nil {
		t.Fatalf("filestore.New() ошибка: %v", err)
	}
	pool := repository.NewPool(pg)
	writer := NewAssetWriter(pool, files, testLogger())
	cache := newTestCache(t, 16)
	svc := NewCatalogService(pool, writer, cache, "/uploads", testLogger())

	author, err := svc.Create(ctx, model.Author, bookParams("firstname", "Ray", "lastname", "Bradbury"), nil)
	if err != nil || author.Outcome != OutcomeApplied {
		t.Fatalf("Create(author) = %+v, %v", author, err)
	}

	first := stage(t, files, "cover-1")
	book, err := svc.Create(ctx, model.Book,
		bookParams("title", "Fahrenheit 451", "date", "1953-10-19", "image", "/etc/passwd"), first)
	if err != nil || book.Outcome != OutcomeApplied {
		t.Fatalf("Create(book) = %+v, %v", book, err)
	}

	rec, err := svc.Get(ctx, model.Book, book.ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	oldPath, _ := rec["image"].(string)
	if oldPath != files.TargetPath(first) {
		t.Fatalf("image = %q, ожидали %q", oldPath, files.TargetPath(first))
	}
	if _, err := os.Stat(oldPath); err != nil {
		t.Fatalf("файл обложки не найден: %v", err)
	}

	// Фильтр с попыткой инъекции в значении остаётся параметром
	params, err := query.ParseQuery("title[like]=%25451'%3B DROP TABLE book%3B--&limit=10")
	if err != nil {
		t.Fatalf("ParseQuery() ошибка: %v", err)
	}
	list, err := svc.List(ctx, model.Book, query.SelectParamsFrom(params))
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %d записей, ожидали 0", len(list))
	}

	params, _ = query.ParseQuery("title[like]=%25451&orderBy[id]=desc")
	list, err = svc.List(ctx, model.Book, query.SelectParamsFrom(params))
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	if list[0]["image_url"] != "/uploads/"+filepath.Base(oldPath) {
		t.Errorf("image_url = %v", list[0]["image_url"])
	}

	second := stage(t, files, "cover-2")
	upd, err := svc.Update(ctx, model.Book, book.ID, bookParams("author_id", strconv.FormatInt(author.ID, 10)), second)
	if err != nil || upd.Outcome != OutcomeApplied {
		t.Fatalf("Update() = %+v, %v", upd, err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("старая обложка должна быть удалена")
	}
	if _, err := os.Stat(files.TargetPath(second)); err != nil {
		t.Errorf("новая обложка не найдена: %v", err)
	}

	missing, err := svc.Update(ctx, model.Book, book.ID+1000, bookParams("title", "X"), nil)
	if err != nil || missing.Outcome != OutcomeNotFound {
		t.Errorf("Update(missing) = %+v, %v", missing, err)
	}

	if _, err := svc.Get(ctx, model.Book, book.ID+1000); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get(missing) ошибка = %v, ожидали ErrNotFound", err)
	}
}
