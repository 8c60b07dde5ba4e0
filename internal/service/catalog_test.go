package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
)

// recordingInvalidator запоминает сброшенные префиксы.
type recordingInvalidator struct {
	prefixes []string
}

func (r *recordingInvalidator) Invalidate(prefix string) {
	r.prefixes = append(r.prefixes, prefix)
}

func setupCatalog(t *testing.T) (*CatalogService, *recordingInvalidator) {
	t.Helper()
	writer, db, _ := setupWriter(t)
	inv := &recordingInvalidator{}
	return NewCatalogService(db, writer, inv, "/uploads", testLogger()), inv
}

// TestCatalogService_InvalidatesOnApplied проверяет сброс кэша только
// после применённой записи.
func TestCatalogService_InvalidatesOnApplied(t *testing.T) {
	svc, inv := setupCatalog(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, model.Author, bookParams("firstname", "A"), nil)
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("Create() = %+v, %v", res, err)
	}
	if len(inv.prefixes) != 1 || inv.prefixes[0] != "author" {
		t.Fatalf("prefixes = %v", inv.prefixes)
	}

	if res, _ := svc.Create(ctx, model.Author, bookParams("x", "1"), nil); res.Outcome != OutcomeNoOp {
		t.Errorf("Outcome = %s", res.Outcome)
	}
	if res, _ := svc.Update(ctx, model.Author, 999, bookParams("firstname", "B"), nil); res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %s", res.Outcome)
	}
	if len(inv.prefixes) != 1 {
		t.Errorf("no-op и not_found не должны сбрасывать кэш: %v", inv.prefixes)
	}

	if res, _ := svc.Update(ctx, model.Author, res.ID, bookParams("firstname", "B"), nil); res.Outcome != OutcomeApplied {
		t.Errorf("Outcome = %s", res.Outcome)
	}
	if len(inv.prefixes) != 2 {
		t.Errorf("prefixes = %v", inv.prefixes)
	}
}

// TestCatalogService_WriteThenReadIsFresh проверяет, что после записи
// чтение через кэш не возвращает тело, закэшированное до неё.
func TestCatalogService_WriteThenReadIsFresh(t *testing.T) {
	writer, db, _ := setupWriter(t)
	cache := newTestCache(t, 16)
	svc := NewCatalogService(db, writer, cache, "", testLogger())

	q, _ := url.ParseQuery("limit=10")
	key, _, _ := cache.Lookup("author", model.Author.CacheKeys, q)
	cache.Store("author", key, []byte(`[]`), time.Minute)

	if _, err := svc.Create(context.Background(), model.Author, bookParams("firstname", "A"), nil); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if _, _, ok := cache.Lookup("author", model.Author.CacheKeys, q); ok {
		t.Error("после записи кэш author должен быть пуст")
	}
}

// TestCatalogService_PresentAsset проверяет публичный URL файла.
func TestCatalogService_PresentAsset(t *testing.T) {
	svc, _ := setupCatalog(t)

	rec := model.Record{"id": int64(1), "image": "/var/lib/catalog/assets/abc.jpg"}
	svc.presentAsset(model.Book, rec)
	if rec["image_url"] != "/uploads/abc.jpg" {
		t.Errorf("image_url = %v", rec["image_url"])
	}

	noImage := model.Record{"id": int64(2), "image": nil}
	svc.presentAsset(model.Book, noImage)
	if _, ok := noImage["image_url"]; ok {
		t.Error("без файла URL не добавляется")
	}

	author := model.Record{"id": int64(3)}
	svc.presentAsset(model.Author, author)
	if len(author) != 1 {
		t.Error("у автора нет файлов")
	}
}
