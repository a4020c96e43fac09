package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/internal/search"
)

// Config configures the Elasticsearch engine.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Refresh is passed as the refresh parameter on writes: "true",
	// "false" or "wait_for". Empty means "false".
	Refresh string
}

// Engine is an Elasticsearch-backed search.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

var _ search.Engine = (*Engine)(nil)

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source search.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an engine. It does not contact the cluster; call EnsureIndex
// or Ping for that.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		refresh:   cfg.Refresh,
		logger:    logger,
	}, nil
}

// Index returns the index name.
func (e *Engine) Index() string {
	return e.indexName
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the index with the product mapping unless it exists.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: check index exists: %w", err)
	}
	_ = res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		e.logger.DebugContext(ctx, "elasticsearch index already exists", slog.String("index", e.indexName))
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("elasticsearch: check index exists: unexpected status %s", res.Status())
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp, ok := decodeError(res)
		// Another process created it between the two calls.
		if ok && errResp.Error.Type == "resource_already_exists_exception" {
			return nil
		}
		return responseError("elasticsearch: create index", res, errResp, ok)
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// Upsert writes doc under its product id.
func (e *Engine) Upsert(ctx context.Context, doc search.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(docID(doc.ID)),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp, ok := decodeError(res)
		return responseError("elasticsearch index", res, errResp, ok)
	}

	e.logger.DebugContext(ctx, "indexed product", slog.Int64("product_id", doc.ID))
	return nil
}

// Remove deletes the document for id. A 404 is ignored.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	res, err := e.client.Delete(
		e.indexName,
		docID(id),
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		errResp, ok := decodeError(res)
		return responseError("elasticsearch delete", res, errResp, ok)
	}

	e.logger.DebugContext(ctx, "removed product from index", slog.Int64("product_id", id))
	return nil
}

// Query runs params against the index.
func (e *Engine) Query(ctx context.Context, params domain.SearchParams) ([]search.Document, int, error) {
	data, err := json.Marshal(buildSearchQuery(params))
	if err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp, ok := decodeError(res)
		return nil, 0, responseError("elasticsearch search", res, errResp, ok)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	docs := make([]search.Document, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, esResp.Hits.Total.Value, nil
}

// BulkUpsert writes docs with the bulk NDJSON API and fails if any item fails.
func (e *Engine) BulkUpsert(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    docID(docs[i].ID),
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp, ok := decodeError(res)
		return responseError("elasticsearch bulk", res, errResp, ok)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	if bulkResp.Errors {
		var msgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				msgs = append(msgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk: partial errors: %s", strings.Join(msgs, "; "))
	}

	e.logger.DebugContext(ctx, "bulk indexed products", slog.Int("count", len(docs)))
	return nil
}

// DeleteIndex drops the index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		errResp, ok := decodeError(res)
		return responseError("elasticsearch delete index", res, errResp, ok)
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

func buildSearchQuery(params domain.SearchParams) map[string]any {
	var must any
	if params.Term != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":  params.Term,
				"fields": []string{"name^2", "description"},
			},
		}
	} else {
		must = map[string]any{"match_all": map[string]any{}}
	}

	boolQuery := map[string]any{
		"must": []any{must},
	}
	if filters := buildFilters(params); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"from":             params.Offset(),
		"size":             params.PerPage,
		"sort":             buildSort(params.Sort, params.Order),
		"track_total_hits": true,
	}
}

func buildFilters(params domain.SearchParams) []any {
	var filters []any

	if params.Category != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"category": strings.ToLower(params.Category)},
		})
	}

	if params.Status != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"status": string(params.Status)},
		})
	}

	if params.MinPrice != nil || params.MaxPrice != nil {
		rng := map[string]any{}
		if params.MinPrice != nil {
			rng["gte"] = *params.MinPrice
		}
		if params.MaxPrice != nil {
			rng["lte"] = *params.MaxPrice
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"price": rng},
		})
	}

	return filters
}

func buildSort(field, order string) []any {
	if field == "" {
		field = domain.DefaultSort
	}
	if order != domain.OrderAsc {
		order = domain.OrderDesc
	}
	if field == "name" {
		field = "name.keyword"
	}
	return []any{
		map[string]any{field: order},
		map[string]any{"id": order},
	}
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decodeError(res *esapi.Response) (esErrorResponse, bool) {
	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err != nil || errResp.Error.Type == "" {
		return errResp, false
	}
	return errResp, true
}

func responseError(op string, res *esapi.Response, errResp esErrorResponse, decoded bool) error {
	if decoded {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
