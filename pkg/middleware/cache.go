package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// CacheControl marks GET and HEAD responses as cacheable by clients for
// maxAge. A zero maxAge sends no-cache so clients revalidate every time.
// Other methods pass through untouched.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "no-cache"
	if secs := int(maxAge / time.Second); secs > 0 {
		value = "public, max-age=" + strconv.Itoa(secs)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
