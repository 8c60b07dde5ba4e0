package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
)

// InsertResult — результат вставки.
type InsertResult struct {
	// ID — первичный ключ новой записи (при NoOp — 0)
	ID int64
	// NoOp — допустимых полей не было, в БД ничего не отправлялось
	NoOp bool
}

// UpdateResult — результат обновления.
type UpdateResult struct {
	// Updated — строка с таким id существовала и была обновлена
	Updated bool
	// NoOp — допустимых полей не было, в БД ничего не отправлялось
	NoOp bool
}

// RecordStore — обобщённый исполнитель запросов для любой сущности
// с whitelist. Повторов нет: политика retry — забота вызывающего кода.
type RecordStore struct {
	pool Pool
}

// NewRecordStore создаёт RecordStore поверх пула соединений.
func NewRecordStore(pool Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Insert вставляет запись из разрешённых полей params и возвращает её id.
// No-op не является ошибкой и не занимает соединение.
func (s *RecordStore) Insert(ctx context.Context, table string, fields query.Fields, params *query.Params) (InsertResult, error) {
	stmt := query.BuildInsert(table, fields, params)
	if stmt.IsNoOp() {
		return InsertResult{NoOp: true}, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return InsertResult{}, err
	}
	defer conn.Release()

	id, err := ExecInsert(ctx, conn, stmt)
	if err != nil {
		return InsertResult{}, fmt.Errorf("ошибка вставки в %s: %w", table, err)
	}
	return InsertResult{ID: id}, nil
}

// Update обновляет запись id разрешёнными полями params.
// Updated = false, если строки с таким id нет.
func (s *RecordStore) Update(ctx context.Context, table string, fields query.Fields, id int64, params *query.Params) (UpdateResult, error) {
	stmt := query.BuildUpdate(table, fields, params)
	if stmt.IsNoOp() {
		return UpdateResult{NoOp: true}, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	defer conn.Release()

	affected, err := ExecUpdate(ctx, conn, stmt, id)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ошибка обновления %s id=%d: %w", table, id, err)
	}
	return UpdateResult{Updated: affected > 0}, nil
}

// Select выполняет выборку с фильтрами, сортировкой и пагинацией.
func (s *RecordStore) Select(ctx context.Context, table string, where query.FieldSpec, sort query.SortSpec, sel query.SelectParams) ([]model.Record, error) {
	stmt := query.BuildSelect(table, where, sort, sel)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query.Rebind(stmt.SQL), stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки из %s: %w", table, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения строк %s: %w", table, err)
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// GetByID возвращает запись по первичному ключу или ErrNotFound.
func (s *RecordStore) GetByID(ctx context.Context, table string, id int64) (model.Record, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table), id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения %s id=%d: %w", table, id, err)
	}

	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения %s id=%d: %w", table, id, err)
	}
	return record, nil
}

// ExecInsert выполняет построенный INSERT и возвращает id новой строки.
// Отсутствие строки в ответе — pgx.ErrNoRows.
func ExecInsert(ctx context.Context, db DBTX, stmt query.Statement) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, query.Rebind(stmt.SQL)+" RETURNING id", stmt.Args...).Scan(&id)
	return id, err
}

// ExecUpdate выполняет построенный UPDATE только для строки id:
// дописывает WHERE id = ? и передаёт id последним параметром.
// Возвращает число затронутых строк.
func ExecUpdate(ctx context.Context, db DBTX, stmt query.Statement, id int64) (int64, error) {
	args := append(slices.Clip(stmt.Args), id)
	tag, err := db.Exec(ctx, query.Rebind(stmt.SQL+" WHERE id = ?"), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LockAssetPath читает путь к файлу записи с блокировкой строки до конца
// транзакции. Запись без файла — nil. Нет строки — ErrNotFound.
func LockAssetPath(ctx context.Context, tx DBTX, table, column string, id int64) (*string, error) {
	var path *string
	err := tx.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR UPDATE", column, table), id,
	).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения %s.%s id=%d: %w", table, column, id, err)
	}
	return path, nil
}
