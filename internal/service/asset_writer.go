// asset_writer.go — запись строки сущности вместе с файлом ассета.
//
// Строка и файл живут в двух разных хранилищах, поэтому порядок операций
// фиксирован: сначала SQL внутри транзакции, затем перенос файла из staging
// в каталог ассетов, затем COMMIT. На любом сбое после начала транзакции
// staged-файл и (если уже создан) целевой файл удаляются, транзакция
// откатывается. Ошибки этих шагов логируются и возвращаются как
// OutcomeFailed, а не как error.
//
// Единственное окно несогласованности — между COMMIT и удалением старого
// файла при обновлении: сбой там оставляет один лишний файл.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
)

// Outcome — итог операции записи.
type Outcome string

const (
	// OutcomeApplied — изменение закоммичено.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoOp — допустимых полей не было, в БД ничего не менялось.
	OutcomeNoOp Outcome = "noop"
	// OutcomeNotFound — обновляемой строки нет, в БД ничего не менялось.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeFailed — сбой БД или файловой системы, изменения отменены.
	OutcomeFailed Outcome = "failed"
)

const (
	opInsert = "insert"
	opUpdate = "update"
)

// assetWritesTotal — количество операций записи по типу и итогу.
var assetWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cm_asset_writes_total",
	Help: "Общее количество операций записи сущностей по итогу",
}, []string{"op", "outcome"})

// WriteResult — результат Insert/Update.
type WriteResult struct {
	Outcome Outcome
	// ID — первичный ключ записи (только для OutcomeApplied)
	ID int64
}

// AssetFiles — операции с файлами, нужные AssetWriter.
// Реализуется *filestore.FileStore.
type AssetFiles interface {
	TargetPath(asset *model.StagedAsset) string
	Place(src, dst string) error
	Delete(path string) error
}

// AssetWriter — запись сущностей с опциональным файлом ассета.
// Без файла операции делегируются RecordStore.
type AssetWriter struct {
	pool   repository.Pool
	store  *repository.RecordStore
	files  AssetFiles
	logger *slog.Logger
}

// NewAssetWriter создаёт AssetWriter.
func NewAssetWriter(pool repository.Pool, files AssetFiles, logger *slog.Logger) *AssetWriter {
	return &AssetWriter{
		pool:   pool,
		store:  repository.NewRecordStore(pool),
		files:  files,
		logger: logger.With(slog.String("component", "asset_writer")),
	}
}

// Insert создаёт запись сущности e. Если asset не nil, файл переносится
// в каталог ассетов, а путь к нему записывается в столбец e.AssetField.
// error возвращается, только если не удалось получить соединение
// или упал запрос без файла.
func (w *AssetWriter) Insert(ctx context.Context, e model.Entity, params *query.Params, asset *model.StagedAsset) (WriteResult, error) {
	if asset != nil && !e.HasAsset() {
		w.discard(asset.SourcePath)
		asset = nil
	}
	if asset == nil {
		res, err := w.store.Insert(ctx, e.Table, e.Insertable, params)
		switch {
		case err != nil:
			return w.done(opInsert, WriteResult{Outcome: OutcomeFailed}), err
		case res.NoOp:
			return w.done(opInsert, WriteResult{Outcome: OutcomeNoOp}), nil
		default:
			return w.done(opInsert, WriteResult{Outcome: OutcomeApplied, ID: res.ID}), nil
		}
	}

	target := w.files.TargetPath(asset)
	stmt := query.BuildInsert(e.Table, e.Insertable, withAsset(params, e.AssetField, target))
	if stmt.IsNoOp() {
		w.discard(asset.SourcePath)
		return w.done(opInsert, WriteResult{Outcome: OutcomeNoOp}), nil
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.discard(asset.SourcePath)
		return w.done(opInsert, WriteResult{Outcome: OutcomeFailed}), err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		w.discard(asset.SourcePath)
		w.logger.Error("Ошибка начала транзакции",
			slog.String("table", e.Table),
			slog.String("error", err.Error()),
		)
		return w.done(opInsert, WriteResult{Outcome: OutcomeFailed}), nil
	}

	id, err := repository.ExecInsert(ctx, tx, stmt)
	if err != nil {
		return w.abort(ctx, tx, opInsert, e.Table, asset, "", err), nil
	}

	if err := w.files.Place(asset.SourcePath, target); err != nil {
		return w.abort(ctx, tx, opInsert, e.Table, asset, target, err), nil
	}

	if err := tx.Commit(ctx); err != nil {
		return w.abort(ctx, tx, opInsert, e.Table, asset, target, err), nil
	}

	w.logger.Info("Запись с файлом создана",
		slog.String("table", e.Table),
		slog.Int64("id", id),
		slog.String("asset", target),
	)
	return w.done(opInsert, WriteResult{Outcome: OutcomeApplied, ID: id}), nil
}

// Update обновляет запись id сущности e. Если asset не nil, новый файл
// заменяет прежний: старый файл удаляется только после COMMIT.
// Отсутствующая строка — OutcomeNotFound, staged-файл при этом удаляется.
func (w *AssetWriter) Update(ctx context.Context, e model.Entity, id int64, params *query.Params, asset *model.StagedAsset) (WriteResult, error) {
	if asset != nil && !e.HasAsset() {
		w.discard(asset.SourcePath)
		asset = nil
	}
	if asset == nil {
		res, err := w.store.Update(ctx, e.Table, e.Updatable, id, params)
		switch {
		case err != nil:
			return w.done(opUpdate, WriteResult{Outcome: OutcomeFailed}), err
		case res.NoOp:
			return w.done(opUpdate, WriteResult{Outcome: OutcomeNoOp}), nil
		case !res.Updated:
			return w.done(opUpdate, WriteResult{Outcome: OutcomeNotFound}), nil
		default:
			return w.done(opUpdate, WriteResult{Outcome: OutcomeApplied, ID: id}), nil
		}
	}

	target := w.files.TargetPath(asset)
	stmt := query.BuildUpdate(e.Table, e.Updatable, withAsset(params, e.AssetField, target))
	if stmt.IsNoOp() {
		w.discard(asset.SourcePath)
		return w.done(opUpdate, WriteResult{Outcome: OutcomeNoOp}), nil
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.discard(asset.SourcePath)
		return w.done(opUpdate, WriteResult{Outcome: OutcomeFailed}), err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		w.discard(asset.SourcePath)
		w.logger.Error("Ошибка начала транзакции",
			slog.String("table", e.Table),
			slog.String("error", err.Error()),
		)
		return w.done(opUpdate, WriteResult{Outcome: OutcomeFailed}), nil
	}

	previous, err := repository.LockAssetPath(ctx, tx, e.Table, e.AssetField, id)
	if errors.Is(err, repository.ErrNotFound) {
		// Строки нет: фиксируем пустую транзакцию, файл не нужен
		w.discard(asset.SourcePath)
		if err := tx.Commit(ctx); err != nil {
			w.logger.Warn("Ошибка коммита пустой транзакции",
				slog.String("table", e.Table),
				slog.String("error", err.Error()),
			)
		}
		return w.done(opUpdate, WriteResult{Outcome: OutcomeNotFound}), nil
	}
	if err != nil {
		return w.abort(ctx, tx, opUpdate, e.Table, asset, "", err), nil
	}

	affected, err := repository.ExecUpdate(ctx, tx, stmt, id)
	if err != nil {
		return w.abort(ctx, tx, opUpdate, e.Table, asset, "", err), nil
	}
	if affected == 0 {
		return w.abort(ctx, tx, opUpdate, e.Table, asset, "", pgx.ErrNoRows), nil
	}

	if err := w.files.Place(asset.SourcePath, target); err != nil {
		return w.abort(ctx, tx, opUpdate, e.Table, asset, target, err), nil
	}

	if err := tx.Commit(ctx); err != nil {
		return w.abort(ctx, tx, opUpdate, e.Table, asset, target, err), nil
	}

	// После COMMIT: сбой здесь оставляет только лишний старый файл
	if previous != nil && *previous != "" && *previous != target {
		if err := w.files.Delete(*previous); err != nil {
			w.logger.Warn("Не удалось удалить прежний файл",
				slog.String("path", *previous),
				slog.String("error", err.Error()),
			)
		}
	}

	w.logger.Info("Запись с файлом обновлена",
		slog.String("table", e.Table),
		slog.Int64("id", id),
		slog.String("asset", target),
	)
	return w.done(opUpdate, WriteResult{Outcome: OutcomeApplied, ID: id}), nil
}

// abort отменяет запись: удаляет staged-файл и целевой файл (если он уже
// создан), откатывает транзакцию. Соединение освобождает defer вызывающего.
func (w *AssetWriter) abort(ctx context.Context, tx pgx.Tx, op, table string, asset *model.StagedAsset, target string, cause error) WriteResult {
	w.logger.Error("Ошибка записи с файлом, откат",
		slog.String("op", op),
		slog.String("table", table),
		slog.String("error", cause.Error()),
	)

	w.discard(asset.SourcePath)
	if target != "" {
		w.discard(target)
	}

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		w.logger.Warn("Ошибка отката транзакции",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
	}

	return w.done(op, WriteResult{Outcome: OutcomeFailed})
}

// discard удаляет файл, ошибки только логируются.
func (w *AssetWriter) discard(path string) {
	if err := w.files.Delete(path); err != nil {
		w.logger.Warn("Не удалось удалить файл",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// done обновляет метрику и возвращает результат без изменений.
func (w *AssetWriter) done(op string, res WriteResult) WriteResult {
	assetWritesTotal.WithLabelValues(op, string(res.Outcome)).Inc()
	return res
}

// withAsset возвращает копию params с путём ассета в поле field.
// Исходный порядок ключей сохраняется; новое поле добавляется в конец.
func withAsset(params *query.Params, field, path string) *query.Params {
	out := query.NewParams()
	if params != nil {
		for pair := params.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	out.Set(field, path)
	return out
}
