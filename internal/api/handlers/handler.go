// handler.go — обработчики CRUD каталога: список, запись по id,
// создание и обновление для любой сущности из model.Entities.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/catalog-module/internal/api/errors"
	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
	"github.com/bigkaa/goartstore/catalog-module/internal/service"
)

// Catalog — операции каталога. Реализуется *service.CatalogService.
type Catalog interface {
	List(ctx context.Context, e model.Entity, sel query.SelectParams) ([]model.Record, error)
	Get(ctx context.Context, e model.Entity, id int64) (model.Record, error)
	Create(ctx context.Context, e model.Entity, params *query.Params, asset *model.StagedAsset) (service.WriteResult, error)
	Update(ctx context.Context, e model.Entity, id int64, params *query.Params, asset *model.StagedAsset) (service.WriteResult, error)
}

// Stager — приём загрузок во временный каталог. Реализуется *filestore.FileStore.
type Stager interface {
	Stage(r io.Reader, originalName string) (*model.StagedAsset, error)
}

// CatalogHandler — HTTP-обработчики каталога.
type CatalogHandler struct {
	catalog   Catalog
	files     Stager
	maxUpload int64
	logger    *slog.Logger
}

// NewCatalogHandler создаёт обработчики каталога.
// maxUpload — предельный размер тела запроса записи (CM_MAX_UPLOAD_SIZE).
func NewCatalogHandler(catalog Catalog, files Stager, maxUpload int64, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:   catalog,
		files:     files,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("component", "catalog_handler")),
	}
}

// List обрабатывает GET /api/v1/{entity}.
// Фильтры, сортировка и пагинация берутся из строки запроса.
func (h *CatalogHandler) List(e model.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := query.ParseQuery(r.URL.RawQuery)
		if err != nil {
			apierrors.ValidationError(w, "Некорректная строка запроса")
			return
		}

		records, err := h.catalog.List(r.Context(), e, query.SelectParamsFrom(params))
		if err != nil {
			h.logger.Error("Ошибка выборки",
				slog.String("entity", e.Name),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w)
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

// Get обрабатывает GET /api/v1/{entity}/{id}.
func (h *CatalogHandler) Get(e model.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		h.writeRecord(w, r, e, id, http.StatusOK)
	}
}

// Create обрабатывает POST /api/v1/{entity}.
// Ответ: 201 {"id": N}; нет допустимых полей — 400.
func (h *CatalogHandler) Create(e model.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.readRequest(w, r, e)
		if !ok {
			return
		}

		res, err := h.catalog.Create(r.Context(), e, req.params, req.asset)
		if !h.checkWrite(w, e, res, err) {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": res.ID})
	}
}

// Update обрабатывает PATCH /api/v1/{entity}/{id}.
// Ответ: 200 с обновлённой записью; записи нет — 404.
func (h *CatalogHandler) Update(e model.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		req, ok := h.readRequest(w, r, e)
		if !ok {
			return
		}

		res, err := h.catalog.Update(r.Context(), e, id, req.params, req.asset)
		if !h.checkWrite(w, e, res, err) {
			return
		}
		h.writeRecord(w, r, e, id, http.StatusOK)
	}
}

// readRequest разбирает тело записи и отвечает ошибкой, если не удалось.
func (h *CatalogHandler) readRequest(w http.ResponseWriter, r *http.Request, e model.Entity) (*writeRequest, bool) {
	req, err := h.readWriteRequest(w, r, e)
	switch {
	case err == nil:
		return req, true
	case errors.Is(err, errBodyTooLarge):
		apierrors.PayloadTooLarge(w, err.Error())
	case errors.Is(err, errStageFailed):
		h.logger.Error("Ошибка приёма файла",
			slog.String("entity", e.Name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w)
	default:
		apierrors.ValidationError(w, err.Error())
	}
	return nil, false
}

// checkWrite переводит результат записи в HTTP-ответ.
// Возвращает true, если запись применена и ответ ещё не отправлен.
func (h *CatalogHandler) checkWrite(w http.ResponseWriter, e model.Entity, res service.WriteResult, err error) bool {
	if err != nil {
		h.logger.Error("Ошибка записи",
			slog.String("entity", e.Name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w)
		return false
	}

	switch res.Outcome {
	case service.OutcomeApplied:
		return true
	case service.OutcomeNoOp:
		apierrors.ValidationError(w, "Нет допустимых полей для записи")
	case service.OutcomeNotFound:
		apierrors.NotFound(w, "Запись не найдена")
	default:
		apierrors.InternalError(w)
	}
	return false
}

// writeRecord отвечает записью id или 404.
func (h *CatalogHandler) writeRecord(w http.ResponseWriter, r *http.Request, e model.Entity, id int64, status int) {
	record, err := h.catalog.Get(r.Context(), e, id)
	if errors.Is(err, repository.ErrNotFound) {
		apierrors.NotFound(w, "Запись не найдена")
		return
	}
	if err != nil {
		h.logger.Error("Ошибка чтения записи",
			slog.String("entity", e.Name),
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w)
		return
	}
	writeJSON(w, status, record)
}

// parseID извлекает положительный id из пути.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Некорректный id")
		return 0, false
	}
	return id, true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
