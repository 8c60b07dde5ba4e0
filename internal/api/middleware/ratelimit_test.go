package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestWriteLimiter_Allow(t *testing.T) {
	l := NewWriteLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := range 2 {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("запрос %d в пределах всплеска отклонён", i)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("третий запрос должен быть отклонён")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, ожидается (0, 1s]", wait)
	}

	// У другого клиента своя корзина
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("другой адрес не должен ограничиваться")
	}

	// Через секунду появляется токен
	now = now.Add(time.Second)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Error("после пополнения запрос должен пройти")
	}
}

func TestWriteRateLimit(t *testing.T) {
	l := NewWriteLimiter(0.5, 1)
	calls := 0
	h := WriteRateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/book", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("192.0.2.1:1234"); rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	// Тот же адрес с другим портом — тот же клиент
	rec := send("192.0.2.1:5678")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, ожидается 429", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 2 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if calls != 1 {
		t.Errorf("calls = %d, ожидается 1", calls)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"pipe", "pipe"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientAddr(req); got != tt.want {
			t.Errorf("clientAddr(%q) = %q, ожидается %q", tt.remote, got, tt.want)
		}
	}
}
