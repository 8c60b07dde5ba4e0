// Пакет repository — слой доступа к данным PostgreSQL для Catalog Module.
// Все запросы строит пакет query по whitelist сущности, выполнение — через pgx.
// Каждая операция берёт одно соединение из пула и возвращает его на любом пути выхода.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как соединением пула, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn — соединение, взятое из пула на время одной операции.
// Release обязателен на всех путях выхода, иначе пул исчерпается.
type Conn interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// Pool — источник соединений. Acquire может ждать свободного соединения
// в пределах настроек пула.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// pgxPool — адаптер *pgxpool.Pool к интерфейсу Pool.
type pgxPool struct {
	pool *pgxpool.Pool
}

// NewPool оборачивает pgxpool в Pool.
func NewPool(pool *pgxpool.Pool) Pool {
	return &pgxPool{pool: pool}
}

// Acquire берёт соединение из pgxpool.
func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения соединения из пула: %w", err)
	}
	return conn, nil
}

// TxRunner позволяет выполнять операции в транзакции на одном соединении.
type TxRunner struct {
	pool Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится. Соединение возвращается в пул в любом случае.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
