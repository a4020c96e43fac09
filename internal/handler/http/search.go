package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalog/internal/service"
	"github.com/utafrali/catalog/pkg/httputil"
)

// SearchHandler serves queries against the search index.
type SearchHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.ProductService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// SearchProducts handles GET /api/v1/search/products
// @Summary Search products
// @Description Full-text search over the index. An unavailable index yields an empty page, not an error.
// @Tags search
// @Produce json
// @Param q query string false "Search term"
// @Param category query string false "Filter by category"
// @Param status query string false "Filter by status" Enums(active,inactive)
// @Param min_price query number false "Minimum price, inclusive"
// @Param max_price query number false "Maximum price, inclusive"
// @Param sort query string false "Sort field" Enums(created_at,updated_at,name,price,sku)
// @Param order query string false "Sort direction" Enums(asc,desc)
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page (max 100)" default(15)
// @Success 200 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/search/products [get]
func (h *SearchHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.Search(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

// Reindex handles POST /api/v1/search/reindex
// @Summary Rebuild the search index from the record store
// @Tags search
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/search/reindex [post]
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Reindex(r.Context(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, "Search index rebuilt", map[string]int{"indexed": n})
}
