package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/pkg/database"
	apperrors "github.com/utafrali/catalog/pkg/errors"
)

const productColumns = `id, sku, name, description, price::text, category, status, image_url, created_at, updated_at, deleted_at`

// sortColumns maps accepted sort fields to SQL columns.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"price":      "price",
	"sku":        "sku",
}

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID retrieves a product by its ID.
func (r *ProductRepository) FindByID(ctx context.Context, id int64, withTrashed bool) (p *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if !withTrashed {
		query += ` AND deleted_at IS NULL`
	}

	ctx, end := database.TraceQuery(ctx, "products.find_by_id", query)
	defer func() { end(err) }()

	p, err = scanProduct(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("product", strconv.FormatInt(id, 10))
	}
	return p, err
}

// FindBySKU retrieves a product by SKU, including soft-deleted rows.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (p *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	ctx, end := database.TraceQuery(ctx, "products.find_by_sku", query)
	defer func() { end(err) }()

	return scanProduct(r.db.QueryRow(ctx, query, sku))
}

// Insert stores a new product and populates its generated fields.
func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (sku, name, description, price, category, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "products.insert", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		p.SKU,
		p.Name,
		p.Description,
		p.Price.StringFixed(2),
		p.Category,
		string(p.Status),
		p.ImageURL,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("product", "sku", p.SKU)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a live product.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) (err error) {
	query := `
		UPDATE products
		SET sku = $1, name = $2, description = $3, price = $4, category = $5,
		    status = $6, image_url = $7, updated_at = NOW()
		WHERE id = $8 AND deleted_at IS NULL
		RETURNING updated_at`

	ctx, end := database.TraceQuery(ctx, "products.update", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		p.SKU,
		p.Name,
		p.Description,
		p.Price.StringFixed(2),
		p.Category,
		string(p.Status),
		p.ImageURL,
		p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.NotFound("product", strconv.FormatInt(p.ID, 10))
		case isUniqueViolation(err):
			return apperrors.Conflict("product", "sku", p.SKU)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// SoftDelete marks a live product as deleted.
func (r *ProductRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "products.soft_delete",
		`UPDATE products SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
}

// Restore clears the deletion mark of a soft-deleted product.
func (r *ProductRepository) Restore(ctx context.Context, id int64) error {
	return r.execOne(ctx, "products.restore",
		`UPDATE products SET deleted_at = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
}

// ForceDelete removes a product row permanently.
func (r *ProductRepository) ForceDelete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "products.force_delete", `DELETE FROM products WHERE id = $1`, id)
}

func (r *ProductRepository) execOne(ctx context.Context, op, query string, id int64) (err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", strconv.FormatInt(id, 10))
	}
	return nil
}

// List returns live products matching the filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter domain.ListFilter) (products []domain.Product, total int, err error) {
	filter = filter.Normalize()

	var (
		conditions = []string{"deleted_at IS NULL"}
		args       []any
		argIndex   = 1
	)

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, filter.MinPrice.String())
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, filter.MaxPrice.String())
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR sku ILIKE $%d)", argIndex, argIndex, argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[domain.DefaultSort]
	}
	direction := "DESC"
	if filter.Order == domain.OrderAsc {
		direction = "ASC"
	}

	// count(*) OVER() yields the total without a second query. The id
	// tiebreaker keeps pages stable when the sort column has duplicates.
	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		WHERE %s
		ORDER BY %s %s, id %s
		LIMIT $%d OFFSET $%d`,
		productColumns, strings.Join(conditions, " AND "), column, direction, direction, argIndex, argIndex+1,
	)
	args = append(args, filter.PerPage, filter.Offset())

	ctx, end := database.TraceQuery(ctx, "products.list", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := scanInto(rows, &p, &total); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}
	return products, total, nil
}

// Batch returns products after afterID in ID order, for full reindexing.
func (r *ProductRepository) Batch(ctx context.Context, afterID int64, limit int, withTrashed bool) (products []domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id > $1`
	if !withTrashed {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY id LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "products.batch", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("batch products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := scanInto(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := scanInto(row, &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

// scanInto reads the productColumns of one row into p. extra receives any
// trailing columns.
func scanInto(row pgx.Row, p *domain.Product, extra ...any) error {
	var (
		price  string
		status string
	)
	dest := []any{
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&price,
		&p.Category,
		&status,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	d, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	p.Status = domain.Status(status)
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
