package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the publication state of a product.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Product is the authoritative catalog record.
type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Status      Status          `json:"status"`
	ImageURL    *string         `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// Trashed reports whether the product has been soft-deleted.
func (p *Product) Trashed() bool {
	return p.DeletedAt != nil
}

// CreateProductInput carries the fields accepted when creating a product.
type CreateProductInput struct {
	SKU         string          `json:"sku" validate:"required,max=100"`
	Name        string          `json:"name" validate:"required,min=3,max=255"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"required,gte=0.01"`
	Category    string          `json:"category" validate:"required,max=100"`
	Status      Status          `json:"status" validate:"omitempty,oneof=active inactive"`
}

// NewProduct builds an unsaved product from validated input.
func NewProduct(in CreateProductInput) *Product {
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	return &Product{
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Category:    in.Category,
		Status:      status,
	}
}

// ProductPatch is a partial update. Nil fields are left unchanged.
type ProductPatch struct {
	SKU         *string          `json:"sku" validate:"omitempty,max=100"`
	Name        *string          `json:"name" validate:"omitempty,min=3,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0.01"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	Status      *Status          `json:"status" validate:"omitempty,oneof=active inactive"`
	ImageURL    *string          `json:"-"`
}

// Empty reports whether the patch touches no field.
func (p ProductPatch) Empty() bool {
	return len(p.ChangedFields()) == 0
}

// ChangedFields lists the JSON names of the fields present in the patch.
func (p ProductPatch) ChangedFields() []string {
	var fields []string
	if p.SKU != nil {
		fields = append(fields, "sku")
	}
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Price != nil {
		fields = append(fields, "price")
	}
	if p.Category != nil {
		fields = append(fields, "category")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.ImageURL != nil {
		fields = append(fields, "image_url")
	}
	return fields
}

// Apply merges the patch into p.
func (p ProductPatch) Apply(dst *Product) {
	if p.SKU != nil {
		dst.SKU = *p.SKU
	}
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Price != nil {
		dst.Price = p.Price.Round(2)
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Status != nil {
		dst.Status = *p.Status
	}
	if p.ImageURL != nil {
		url := *p.ImageURL
		dst.ImageURL = &url
	}
}

// Actor identifies who performed a mutation, for audit logging.
type Actor struct {
	UserID   string
	ClientIP string
}

// Anonymous is the user id recorded when the caller did not identify itself.
const Anonymous = "anonymous"

// NewActor returns an actor, substituting Anonymous for an empty user id.
func NewActor(userID, clientIP string) Actor {
	if userID == "" {
		userID = Anonymous
	}
	return Actor{UserID: userID, ClientIP: clientIP}
}
