package middleware

import (
	"bytes"
	"net/http"
)

// responseWriter — обёртка для перехвата статус-кода, размера
// и (по запросу) тела ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	written     int64
	body        *bytes.Buffer
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// newCapturingWriter дополнительно копирует тело ответа в буфер.
func newCapturingWriter(w http.ResponseWriter) *responseWriter {
	rw := newResponseWriter(w)
	rw.body = &bytes.Buffer{}
	return rw
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	if rw.body != nil {
		rw.body.Write(b[:n])
	}
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
