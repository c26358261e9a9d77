package security

import (
	"net/http"
)

// BodyLimit caps request payload sizes. Quote submissions are small JSON
// documents; anything large is either abuse or a broken client.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized requests with HTTP 413. Requests that
// declare an oversized Content-Length are refused before any read; the
// rest are wrapped with http.MaxBytesReader so handlers hit the cap
// during decoding.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
