package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
)

func authorParams(kv ...string) *query.Params {
	p := query.NewParams()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// TestRecordStore_Insert проверяет вставку с RETURNING id и возврат соединения.
func TestRecordStore_Insert(t *testing.T) {
	conn := &fakeConn{rowID: 42}
	pool := &fakePool{conn: conn}
	store := NewRecordStore(pool)

	res, err := store.Insert(context.Background(), "author", model.Author.Insertable,
		authorParams("lastname", "Ballard", "hack", "1", "firstname", "James"))
	if err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if res.ID != 42 || res.NoOp {
		t.Errorf("Insert() = %+v, ожидался ID=42", res)
	}
	if conn.released != 1 {
		t.Errorf("released = %d, ожидалось 1", conn.released)
	}

	want := "INSERT INTO author (lastname,firstname) VALUES ($1,$2) RETURNING id"
	if len(conn.calls) != 1 || conn.calls[0].sql != want {
		t.Fatalf("SQL = %+v, ожидался %q", conn.calls, want)
	}
	if !reflect.DeepEqual(conn.calls[0].args, []any{"Ballard", "James"}) {
		t.Errorf("args = %v", conn.calls[0].args)
	}
}

// TestRecordStore_InsertNoOp проверяет, что no-op не занимает соединение.
func TestRecordStore_InsertNoOp(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	store := NewRecordStore(pool)

	res, err := store.Insert(context.Background(), "author", model.Author.Insertable,
		authorParams("id", "7", "unknown", "x"))
	if err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if !res.NoOp {
		t.Error("ожидался NoOp")
	}
	if pool.acquired != 0 {
		t.Errorf("acquired = %d, no-op не должен брать соединение", pool.acquired)
	}
}

// TestRecordStore_InsertError проверяет возврат соединения при ошибке.
func TestRecordStore_InsertError(t *testing.T) {
	conn := &fakeConn{rowErr: errors.New("duplicate key")}
	store := NewRecordStore(&fakePool{conn: conn})

	_, err := store.Insert(context.Background(), "author", model.Author.Insertable,
		authorParams("firstname", "A"))
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if conn.released != 1 {
		t.Errorf("released = %d, соединение должно вернуться и при ошибке", conn.released)
	}
}

// TestRecordStore_AcquireError проверяет проброс ошибки пула.
func TestRecordStore_AcquireError(t *testing.T) {
	poolErr := errors.New("пул исчерпан")
	store := NewRecordStore(&fakePool{acquireErr: poolErr})

	_, err := store.Insert(context.Background(), "author", model.Author.Insertable,
		authorParams("firstname", "A"))
	if !errors.Is(err, poolErr) {
		t.Errorf("err = %v, ожидалась ошибка пула", err)
	}
}

// TestRecordStore_Update проверяет, что id добавляется последним параметром.
func TestRecordStore_Update(t *testing.T) {
	tests := []struct {
		name        string
		tag         string
		wantUpdated bool
	}{
		{"строка обновлена", "UPDATE 1", true},
		{"строки нет", "UPDATE 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{execTag: tt.tag}
			store := NewRecordStore(&fakePool{conn: conn})

			res, err := store.Update(context.Background(), "author", model.Author.Updatable, 9,
				authorParams("firstname", "J.G."))
			if err != nil {
				t.Fatalf("Update() ошибка: %v", err)
			}
			if res.Updated != tt.wantUpdated || res.NoOp {
				t.Errorf("Update() = %+v", res)
			}
			if conn.released != 1 {
				t.Errorf("released = %d", conn.released)
			}
			call := conn.calls[0]
			if call.sql != "UPDATE author SET firstname = $1 WHERE id = $2" {
				t.Errorf("SQL = %q", call.sql)
			}
			if !reflect.DeepEqual(call.args, []any{"J.G.", int64(9)}) {
				t.Errorf("args = %v", call.args)
			}
		})
	}
}

// TestRecordStore_UpdateNoOp проверяет no-op обновления.
func TestRecordStore_UpdateNoOp(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	store := NewRecordStore(pool)

	res, err := store.Update(context.Background(), "author", model.Author.Updatable, 1, query.NewParams())
	if err != nil || !res.NoOp {
		t.Errorf("Update() = %+v, %v, ожидался NoOp", res, err)
	}
	if pool.acquired != 0 {
		t.Error("no-op не должен брать соединение")
	}
}

// TestRecordStore_Select проверяет выборку с фильтром и сборку записей.
func TestRecordStore_Select(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"id", "firstname"},
		data:    [][]any{{int64(6), "Isaac"}, {int64(7), "Ursula"}},
	}}
	store := NewRecordStore(&fakePool{conn: conn})

	filters := query.NewParams()
	ops := query.NewParams()
	ops.Set("gt", "5")
	ops.Set("or", "1")
	filters.Set("id", ops)

	records, err := store.Select(context.Background(), model.Author.Table, model.Author.Where,
		model.Author.Sort, query.SelectParams{Filters: filters})
	if err != nil {
		t.Fatalf("Select() ошибка: %v", err)
	}
	if len(records) != 2 || records[1]["firstname"] != "Ursula" {
		t.Errorf("records = %v", records)
	}

	call := conn.calls[0]
	if call.sql != "SELECT * FROM author WHERE id > $1 ORDER BY id ASC LIMIT $2 OFFSET $3" {
		t.Errorf("SQL = %q", call.sql)
	}
	if !reflect.DeepEqual(call.args, []any{"5", 100, 0}) {
		t.Errorf("args = %v", call.args)
	}
	if conn.released != 1 {
		t.Errorf("released = %d", conn.released)
	}
}

// TestRecordStore_SelectEmpty проверяет пустой результат как пустой срез.
func TestRecordStore_SelectEmpty(t *testing.T) {
	store := NewRecordStore(&fakePool{conn: &fakeConn{}})

	records, err := store.Select(context.Background(), "book", model.Book.Where, model.Book.Sort, query.SelectParams{})
	if err != nil {
		t.Fatalf("Select() ошибка: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("records = %#v, ожидался пустой срез", records)
	}
}

// TestRecordStore_GetByID проверяет ErrNotFound и успешное чтение.
func TestRecordStore_GetByID(t *testing.T) {
	store := NewRecordStore(&fakePool{conn: &fakeConn{}})
	if _, err := store.GetByID(context.Background(), "book", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, ожидался ErrNotFound", err)
	}

	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"id", "title"},
		data:    [][]any{{int64(1), "Crash"}},
	}}
	store = NewRecordStore(&fakePool{conn: conn})
	rec, err := store.GetByID(context.Background(), "book", 1)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if rec["title"] != "Crash" {
		t.Errorf("title = %v", rec["title"])
	}
	if conn.calls[0].sql != "SELECT * FROM book WHERE id = $1" {
		t.Errorf("SQL = %q", conn.calls[0].sql)
	}
}

// TestLockAssetPath проверяет чтение пути файла с блокировкой строки.
func TestLockAssetPath(t *testing.T) {
	conn := &fakeConn{}
	conn.rowErr = pgx.ErrNoRows
	if _, err := LockAssetPath(context.Background(), conn, "book", "image", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, ожидался ErrNotFound", err)
	}
	if conn.calls[0].sql != "SELECT image FROM book WHERE id = $1 FOR UPDATE" {
		t.Errorf("SQL = %q", conn.calls[0].sql)
	}
}

// TestTxRunner_RunInTx проверяет коммит, откат и возврат соединения.
func TestTxRunner_RunInTx(t *testing.T) {
	conn := &fakeConn{}
	runner := NewTxRunner(&fakePool{conn: conn})

	if err := runner.RunInTx(context.Background(), func(pgx.Tx) error { return nil }); err != nil {
		t.Fatalf("RunInTx() ошибка: %v", err)
	}
	if conn.tx.commits != 1 {
		t.Errorf("commits = %d, ожидался 1", conn.tx.commits)
	}

	fnErr := errors.New("сбой")
	if err := runner.RunInTx(context.Background(), func(pgx.Tx) error { return fnErr }); !errors.Is(err, fnErr) {
		t.Errorf("err = %v", err)
	}
	if conn.tx.commits != 1 {
		t.Error("после ошибки fn коммита быть не должно")
	}
	if conn.tx.rollbacks != 2 {
		t.Errorf("rollbacks = %d, ожидалось 2 (отложенный откат на обоих путях)", conn.tx.rollbacks)
	}
	if conn.released != 2 {
		t.Errorf("released = %d, ожидалось 2", conn.released)
	}
}
