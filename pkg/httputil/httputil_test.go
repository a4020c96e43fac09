package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteData_MessageAndPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, "Product created successfully", map[string]int{"id": 7})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Product created successfully", resp.Message)
	assert.Nil(t, resp.Error)
}

func TestWriteError_StatusByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperrors.Validation("bad", map[string]string{"name": "is required"}), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"conflict", apperrors.Conflict("product", "sku", "A1"), http.StatusBadRequest, "CONFLICT"},
		{"not found", apperrors.NotFound("product", "9"), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped sentinel", fmt.Errorf("find: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"invalid input", apperrors.InvalidInput("bad min_price"), http.StatusBadRequest, "INVALID_INPUT"},
		{"dependency", apperrors.Dependency("postgres", fmt.Errorf("down")), http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestWriteError_ValidationIncludesFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", nil)
	WriteError(rec, req, apperrors.Validation("invalid", map[string]string{"price": "is required"}), testLogger())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "is required", resp.Error.Fields["price"])
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, apperrors.Internal(fmt.Errorf("pq: password leaked")), testLogger())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "an internal error occurred", resp.Error.Message)
	assert.NotContains(t, rec.Body.String(), "leaked")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithCorrelationID(context.Background(), "req-42"))
	WriteError(rec, req, apperrors.NotFound("product", "1"), testLogger())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	id, ok := ParseID(rec, req, "product", "123")
	assert.True(t, ok)
	assert.Equal(t, int64(123), id)

	for _, bad := range []string{"abc", "0", "-5", ""} {
		rec := httptest.NewRecorder()
		_, ok := ParseID(rec, req, "product", bad)
		assert.False(t, ok, bad)
		assert.Equal(t, http.StatusNotFound, rec.Code, bad)
	}
}
