// catalog.go — операции каталога над сущностями с whitelist.
// Чтение идёт в RecordStore, запись — через AssetWriter; после каждой
// применённой записи префикс кэша сущности сбрасывается.
package service

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
)

// assetURLSuffix — суффикс поля с публичным URL файла в ответе.
const assetURLSuffix = "_url"

// Invalidator — сброс кэша по префиксу. Реализуется *QueryCache.
type Invalidator interface {
	Invalidate(prefix string)
}

// CatalogService — CRUD каталога для любой описанной сущности.
type CatalogService struct {
	store    *repository.RecordStore
	writer   *AssetWriter
	cache    Invalidator
	assetURL string
	logger   *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
// assetURL — публичный префикс файлов ассетов (например, "/uploads").
func NewCatalogService(
	pool repository.Pool,
	writer *AssetWriter,
	cache Invalidator,
	assetURL string,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		store:    repository.NewRecordStore(pool),
		writer:   writer,
		cache:    cache,
		assetURL: assetURL,
		logger:   logger.With(slog.String("component", "catalog")),
	}
}

// List возвращает записи сущности по фильтрам, сортировке и пагинации.
func (s *CatalogService) List(ctx context.Context, e model.Entity, sel query.SelectParams) ([]model.Record, error) {
	records, err := s.store.Select(ctx, e.Table, e.Where, e.Sort, sel)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		s.presentAsset(e, r)
	}
	return records, nil
}

// Get возвращает запись по id или repository.ErrNotFound.
func (s *CatalogService) Get(ctx context.Context, e model.Entity, id int64) (model.Record, error) {
	record, err := s.store.GetByID(ctx, e.Table, id)
	if err != nil {
		return nil, err
	}
	s.presentAsset(e, record)
	return record, nil
}

// Create создаёт запись; asset — необязательный файл.
func (s *CatalogService) Create(ctx context.Context, e model.Entity, params *query.Params, asset *model.StagedAsset) (WriteResult, error) {
	res, err := s.writer.Insert(ctx, e, params, asset)
	s.afterWrite(e, res)
	return res, err
}

// Update обновляет запись id; asset — необязательный новый файл.
func (s *CatalogService) Update(ctx context.Context, e model.Entity, id int64, params *query.Params, asset *model.StagedAsset) (WriteResult, error) {
	res, err := s.writer.Update(ctx, e, id, params, asset)
	s.afterWrite(e, res)
	return res, err
}

// afterWrite сбрасывает кэш сущности после применённой записи.
func (s *CatalogService) afterWrite(e model.Entity, res WriteResult) {
	if res.Outcome != OutcomeApplied {
		return
	}
	s.cache.Invalidate(e.Name)
	s.logger.Debug("Кэш сущности сброшен после записи",
		slog.String("entity", e.Name),
		slog.Int64("id", res.ID),
	)
}

// presentAsset добавляет к записи публичный URL файла (<field>_url).
func (s *CatalogService) presentAsset(e model.Entity, r model.Record) {
	if !e.HasAsset() || s.assetURL == "" {
		return
	}
	p, ok := r[e.AssetField].(string)
	if !ok || p == "" {
		return
	}
	r[e.AssetField+assetURLSuffix] = path.Join(s.assetURL, filepath.Base(p))
}
