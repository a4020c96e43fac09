package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/internal/search"
)

// Op names the engine operation passed to a FaultFunc.
type Op string

const (
	OpEnsureIndex Op = "ensure_index"
	OpDeleteIndex Op = "delete_index"
	OpUpsert      Op = "upsert"
	OpBulkUpsert  Op = "bulk_upsert"
	OpRemove      Op = "remove"
	OpQuery       Op = "query"
	OpPing        Op = "ping"
)

// FaultFunc runs before every operation. A non-nil error aborts it.
type FaultFunc func(ctx context.Context, op Op) error

// Engine is an in-memory search.Engine. A term matches when any of its words
// appears in the name or description, case-insensitively.
type Engine struct {
	mu    sync.RWMutex
	docs  map[int64]search.Document
	fault FaultFunc
}

var _ search.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{docs: make(map[int64]search.Document)}
}

// SetFault installs f, or removes the current one when f is nil.
func (e *Engine) SetFault(f FaultFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fault = f
}

func (e *Engine) check(ctx context.Context, op Op) error {
	e.mu.RLock()
	f := e.fault
	e.mu.RUnlock()
	if f == nil {
		return ctx.Err()
	}
	return f(ctx, op)
}

func (e *Engine) EnsureIndex(ctx context.Context) error {
	return e.check(ctx, OpEnsureIndex)
}

func (e *Engine) DeleteIndex(ctx context.Context) error {
	if err := e.check(ctx, OpDeleteIndex); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.docs)
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.check(ctx, OpPing)
}

func (e *Engine) Upsert(ctx context.Context, doc search.Document) error {
	if err := e.check(ctx, OpUpsert); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.ID] = doc
	return nil
}

func (e *Engine) BulkUpsert(ctx context.Context, docs []search.Document) error {
	if err := e.check(ctx, OpBulkUpsert); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range docs {
		e.docs[docs[i].ID] = docs[i]
	}
	return nil
}

func (e *Engine) Remove(ctx context.Context, id int64) error {
	if err := e.check(ctx, OpRemove); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, id)
	return nil
}

func (e *Engine) Query(ctx context.Context, params domain.SearchParams) ([]search.Document, int, error) {
	if err := e.check(ctx, OpQuery); err != nil {
		return nil, 0, err
	}

	words := strings.Fields(strings.ToLower(params.Term))

	e.mu.RLock()
	matched := make([]search.Document, 0, len(e.docs))
	for _, d := range e.docs {
		if matches(d, params, words) {
			matched = append(matched, d)
		}
	}
	e.mu.RUnlock()

	sortDocs(matched, params.Sort, params.Order)

	total := len(matched)
	start := min(max(params.Offset(), 0), total)
	end := min(start+params.PerPage, total)
	return matched[start:end], total, nil
}

// Get returns the stored document for id.
func (e *Engine) Get(id int64) (search.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.docs[id]
	return d, ok
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

func matches(d search.Document, params domain.SearchParams, words []string) bool {
	if len(words) > 0 {
		text := strings.ToLower(d.Name + " " + d.Description)
		if !slices.ContainsFunc(words, func(w string) bool { return strings.Contains(text, w) }) {
			return false
		}
	}
	if params.Category != "" && d.Category != strings.ToLower(params.Category) {
		return false
	}
	if params.Status != "" && d.Status != string(params.Status) {
		return false
	}
	if params.MinPrice != nil && d.Price < *params.MinPrice {
		return false
	}
	if params.MaxPrice != nil && d.Price > *params.MaxPrice {
		return false
	}
	return true
}

func sortDocs(docs []search.Document, field, order string) {
	slices.SortFunc(docs, func(a, b search.Document) int {
		var c int
		switch field {
		case "name":
			c = cmp.Compare(a.Name, b.Name)
		case "price":
			c = cmp.Compare(a.Price, b.Price)
		case "sku":
			c = cmp.Compare(a.SKU, b.SKU)
		case "updated_at":
			c = cmp.Compare(a.UpdatedAt, b.UpdatedAt)
		default:
			c = cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order == domain.OrderAsc {
			return c
		}
		return -c
	})
}
