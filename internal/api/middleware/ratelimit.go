package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/goartstore/catalog-module/internal/api/errors"
)

const (
	// Число отслеживаемых адресов клиентов.
	limiterClients = 4096
	// Бездействующий адрес забывается через limiterIdle.
	limiterIdle = 10 * time.Minute
)

// WriteLimiter — token bucket на каждый адрес клиента.
type WriteLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewWriteLimiter создаёт ограничитель perSecond запросов/с со всплеском burst.
func NewWriteLimiter(perSecond float64, burst int) *WriteLimiter {
	return &WriteLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterClients, nil, limiterIdle),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow списывает токен клиента key. Если токена нет, возвращает
// время до его появления.
func (l *WriteLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Add продлевает TTL записи при каждом обращении
	l.buckets.Add(key, lim)
	l.mu.Unlock()

	now := l.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, limiterIdle
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// WriteRateLimit ограничивает частоту запросов с одного адреса.
// Ответ 429 RATE_LIMITED с заголовком Retry-After в секундах.
func WriteRateLimit(l *WriteLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(clientAddr(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				apierrors.RateLimited(w, "Слишком много запросов на запись, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr — адрес клиента без порта.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
