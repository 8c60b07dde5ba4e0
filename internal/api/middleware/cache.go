// cache.go — кэширование ответов GET-списков.
// Ключ строится из разрешённых параметров запроса, поэтому запросы,
// отличающиеся только посторонними параметрами, делят одну запись.
package middleware

import (
	"net/http"
	"net/url"
	"time"
)

// cacheHeader — заголовок с результатом поиска в кэше (HIT/MISS).
const cacheHeader = "X-Cache"

// ResponseCache — кэш тел ответов. Реализуется *service.QueryCache.
type ResponseCache interface {
	Lookup(prefix string, allowedKeys []string, params url.Values) (key string, body []byte, ok bool)
	StoreAsync(prefix, key string, body []byte, ttl time.Duration)
}

// Cache отдаёт закэшированное тело ответа, если оно есть и не истекло.
// Иначе выполняет обработчик и, если он ответил 200, сохраняет тело
// в фоне: запись в кэш не задерживает ответ, а её ошибки не видны клиенту.
func Cache(cache ResponseCache, prefix string, allowedKeys []string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			// Строку запроса, которую url.ParseQuery разбирает с потерями,
			// не кэшируем: ключ не покрыл бы все пары, видимые обработчику
			params, err := url.ParseQuery(r.URL.RawQuery)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			key, body, ok := cache.Lookup(prefix, allowedKeys, params)
			if ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(cacheHeader, "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}

			w.Header().Set(cacheHeader, "MISS")
			wrapped := newCapturingWriter(w)
			next.ServeHTTP(wrapped, r)

			if wrapped.statusCode == http.StatusOK {
				cache.StoreAsync(prefix, key, wrapped.body.Bytes(), ttl)
			}
		})
	}
}
