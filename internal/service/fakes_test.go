package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
)

// fakeDB — таблица в памяти, понимающая SQL, который строит пакет query.
// Изменения транзакции видны только после Commit.
type fakeDB struct {
	mu     sync.Mutex
	rows   map[int64]map[string]any
	nextID int64

	insertErr error
	commitErr error
	beginErr  error

	acquired int
	released int
	commits  int
	rollback int
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[int64]map[string]any), nextID: 1}
}

func (db *fakeDB) row(id int64) (map[string]any, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.rows[id]
	return r, ok
}

func (db *fakeDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

// Acquire реализует repository.Pool.
func (db *fakeDB) Acquire(_ context.Context) (repository.Conn, error) {
	db.mu.Lock()
	db.acquired++
	db.mu.Unlock()
	return &fakeConn{db: db}, nil
}

// fakeConn — соединение: вне транзакции изменения применяются сразу.
type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ops := &pendingOps{}
	tag, err := ops.exec(c.db, sql, args)
	if err == nil {
		ops.apply(c.db)
	}
	return tag, err
}

func (c *fakeConn) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("Query не поддерживается fakeConn")
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	ops := &pendingOps{}
	row := ops.queryRow(c.db, sql, args)
	ops.apply(c.db)
	return row
}

func (c *fakeConn) Begin(_ context.Context) (pgx.Tx, error) {
	if c.db.beginErr != nil {
		return nil, c.db.beginErr
	}
	return &fakeTx{db: c.db}, nil
}

func (c *fakeConn) Release() {
	c.db.mu.Lock()
	c.db.released++
	c.db.mu.Unlock()
}

// fakeTx — транзакция с отложенными изменениями.
// Остальные методы pgx.Tx не используются и паникуют через nil-встраивание.
type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	ops    pendingOps
	closed bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.ops.exec(t.db, sql, args)
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return t.ops.queryRow(t.db, sql, args)
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.db.commitErr != nil {
		return t.db.commitErr
	}
	t.ops.apply(t.db)
	t.db.mu.Lock()
	t.db.commits++
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.mu.Lock()
	t.db.rollback++
	t.db.mu.Unlock()
	return nil
}

// pendingOps — отложенные вставки и обновления.
type pendingOps struct {
	inserts map[int64]map[string]any
	updates []pendingUpdate
}

type pendingUpdate struct {
	id     int64
	values map[string]any
}

func (o *pendingOps) exec(db *fakeDB, sql string, args []any) (pgconn.CommandTag, error) {
	if !strings.HasPrefix(sql, "UPDATE ") {
		return pgconn.CommandTag{}, fmt.Errorf("неподдерживаемый SQL: %s", sql)
	}
	setPart := sql[strings.Index(sql, " SET ")+5 : strings.Index(sql, " WHERE ")]
	values := make(map[string]any)
	for i, assignment := range strings.Split(setPart, ", ") {
		col, _, _ := strings.Cut(assignment, " = ")
		values[col] = args[i]
	}
	id := args[len(args)-1].(int64)

	if _, ok := db.row(id); !ok {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	o.updates = append(o.updates, pendingUpdate{id: id, values: values})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (o *pendingOps) queryRow(db *fakeDB, sql string, args []any) pgx.Row {
	switch {
	case strings.HasPrefix(sql, "INSERT "):
		if db.insertErr != nil {
			return fakeRow{err: db.insertErr}
		}
		cols := strings.Split(sql[strings.Index(sql, "(")+1:strings.Index(sql, ")")], ",")
		values := make(map[string]any, len(cols))
		for i, c := range cols {
			values[c] = args[i]
		}
		db.mu.Lock()
		id := db.nextID
		db.nextID++
		db.mu.Unlock()
		if o.inserts == nil {
			o.inserts = make(map[int64]map[string]any)
		}
		o.inserts[id] = values
		return fakeRow{value: id}
	case strings.HasPrefix(sql, "SELECT ") && strings.HasSuffix(sql, "FOR UPDATE"):
		col := strings.Fields(sql)[1]
		r, ok := db.row(args[0].(int64))
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{value: r[col]}
	default:
		return fakeRow{err: fmt.Errorf("неподдерживаемый SQL: %s", sql)}
	}
}

func (o *pendingOps) apply(db *fakeDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id, values := range o.inserts {
		db.rows[id] = values
	}
	for _, u := range o.updates {
		for k, v := range u.values {
			db.rows[u.id][k] = v
		}
	}
}

// fakeRow — результат QueryRow с одним значением.
type fakeRow struct {
	value any
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *int64:
		*d = r.value.(int64)
	case **string:
		if r.value == nil {
			*d = nil
			return nil
		}
		s := r.value.(string)
		*d = &s
	default:
		return fmt.Errorf("неподдерживаемый тип %T", dest[0])
	}
	return nil
}
