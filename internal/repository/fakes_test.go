package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execCall — записанный вызов Exec/Query/QueryRow.
type execCall struct {
	sql  string
	args []any
}

// fakePool — пул с одним поддельным соединением и счётчиком выдач.
type fakePool struct {
	conn       *fakeConn
	acquireErr error
	acquired   int
}

func (p *fakePool) Acquire(_ context.Context) (Conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.conn, nil
}

// fakeConn записывает запросы и отдаёт заранее заданные ответы.
type fakeConn struct {
	calls    []execCall
	released int

	execTag  string
	execErr  error
	queryErr error
	rows     *fakeRows
	rowID    int64
	rowErr   error
	beginErr error
	tx       *fakeTx
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.calls = append(c.calls, execCall{sql: sql, args: args})
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return pgconn.NewCommandTag(c.execTag), nil
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.calls = append(c.calls, execCall{sql: sql, args: args})
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if c.rows == nil {
		return &fakeRows{}, nil
	}
	return c.rows, nil
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.calls = append(c.calls, execCall{sql: sql, args: args})
	return fakeRow{value: c.rowID, err: c.rowErr}
}

func (c *fakeConn) Begin(_ context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	if c.tx == nil {
		c.tx = &fakeTx{}
	}
	return c.tx, nil
}

func (c *fakeConn) Release() { c.released++ }

// fakeTx — транзакция, считающая Commit/Rollback.
// Остальные методы pgx.Tx не используются и паникуют через nil-встраивание.
type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
	commitErr error
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.rollbacks++
	return nil
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
	if len(dest) != 1 {
		return fmt.Errorf("ожидался один аргумент Scan, получено %d", len(dest))
	}
	switch d := dest[0].(type) {
	case *int64:
		v, ok := r.value.(int64)
		if !ok {
			return errors.New("значение не int64")
		}
		*d = v
	case **string:
		if r.value == nil {
			*d = nil
			return nil
		}
		s, ok := r.value.(string)
		if !ok {
			return errors.New("значение не string")
		}
		*d = &s
	default:
		return fmt.Errorf("неподдерживаемый тип %T", dest[0])
	}
	return nil
}

// fakeRows — набор строк для pgx.CollectRows / pgx.RowToMap.
type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	closed  bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	return errors.New("fakeRows поддерживает только RowScanner")
}
