package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsHandler(cfg CORSConfig) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/products", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORS_AnyOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	corsHandler(DefaultCORSConfig()).ServeHTTP(rec, corsRequest(http.MethodGet, "https://shop.example"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

func TestCORS_AllowListedOrigins(t *testing.T) {
	h := corsHandler(CORSConfig{AllowedOrigins: []string{"https://admin.example", "https://shop.example/"}})

	tests := []struct {
		origin string
		want   string
	}{
		{"https://admin.example", "https://admin.example"},
		{"https://shop.example", "https://shop.example"},
		{"https://evil.example", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, corsRequest(http.MethodGet, tt.origin))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		})
	}
}

func TestCORS_CredentialsEchoOrigin(t *testing.T) {
	h := corsHandler(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, corsRequest(http.MethodGet, "https://shop.example"))

	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	req := corsRequest(http.MethodOptions, "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	corsHandler(DefaultCORSConfig()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	corsHandler(DefaultCORSConfig()).ServeHTTP(rec, corsRequest(http.MethodOptions, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}
