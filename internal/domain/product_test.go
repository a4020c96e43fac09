package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/pagination"
	"github.com/utafrali/catalog/pkg/validator"
)

func ptr[T any](v T) *T { return &v }

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusInactive.Valid())
	assert.False(t, Status("draft").Valid())
	assert.False(t, Status("").Valid())
}

func TestNewProduct_DefaultsStatus(t *testing.T) {
	p := NewProduct(CreateProductInput{
		SKU:      "A1",
		Name:     "Widget",
		Price:    decimal.RequireFromString("10.005"),
		Category: "Tools",
	})
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, "10.01", p.Price.StringFixed(2))
	assert.False(t, p.Trashed())
}

func TestCreateProductInput_Validation(t *testing.T) {
	valid := CreateProductInput{SKU: "A1", Name: "Widget", Price: decimal.NewFromInt(10), Category: "Tools"}
	require.NoError(t, validator.Validate(valid))

	tests := []struct {
		name  string
		edit  func(*CreateProductInput)
		field string
	}{
		{"missing sku", func(in *CreateProductInput) { in.SKU = "" }, "sku"},
		{"short name", func(in *CreateProductInput) { in.Name = "ab" }, "name"},
		{"zero price", func(in *CreateProductInput) { in.Price = decimal.Zero }, "price"},
		{"price below minimum", func(in *CreateProductInput) { in.Price = decimal.RequireFromString("0.001") }, "price"},
		{"missing category", func(in *CreateProductInput) { in.Category = "" }, "category"},
		{"bad status", func(in *CreateProductInput) { in.Status = "draft" }, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.edit(&in)
			err := validator.Validate(in)
			var ve *validator.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields(), tt.field)
		})
	}
}

func TestProductPatch_ChangedFieldsAndApply(t *testing.T) {
	p := &Product{SKU: "A1", Name: "Widget", Price: decimal.NewFromInt(10), Category: "Tools", Status: StatusActive}
	patch := ProductPatch{
		Name:     ptr("Gadget"),
		Price:    ptr(decimal.RequireFromString("12.50")),
		Status:   ptr(StatusInactive),
		ImageURL: ptr("http://cdn/x.png"),
	}

	assert.Equal(t, []string{"name", "price", "status", "image_url"}, patch.ChangedFields())
	assert.False(t, patch.Empty())

	patch.Apply(p)
	assert.Equal(t, "Gadget", p.Name)
	assert.Equal(t, "A1", p.SKU)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, StatusInactive, p.Status)
	require.NotNil(t, p.ImageURL)
	assert.Equal(t, "http://cdn/x.png", *p.ImageURL)

	assert.True(t, ProductPatch{}.Empty())
}

func TestProductPatch_Validation(t *testing.T) {
	assert.NoError(t, validator.Validate(ProductPatch{}))
	err := validator.Validate(ProductPatch{Price: ptr(decimal.Zero)})
	var ve *validator.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields(), "price")
}

func TestNewActor(t *testing.T) {
	assert.Equal(t, Actor{UserID: Anonymous, ClientIP: "1.2.3.4"}, NewActor("", "1.2.3.4"))
	assert.Equal(t, "u1", NewActor("u1", "").UserID)
}

func TestListFilter_NormalizeAndValidate(t *testing.T) {
	f := ListFilter{Params: pagination.Params{PerPage: 500}}.Normalize()
	assert.Equal(t, DefaultSort, f.Sort)
	assert.Equal(t, OrderDesc, f.Order)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, pagination.MaxPerPage, f.PerPage)
	assert.NoError(t, f.Validate())

	bad := ListFilter{
		Sort:     "password",
		Order:    "sideways",
		Status:   "draft",
		MinPrice: ptr(decimal.NewFromInt(20)),
		MaxPrice: ptr(decimal.NewFromInt(10)),
	}
	err := bad.Validate()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Len(t, appErr.Fields, 4)
}

func TestListFilter_CacheParams(t *testing.T) {
	f := ListFilter{Category: "Tools", MinPrice: ptr(decimal.RequireFromString("5.5"))}.Normalize()
	params := f.CacheParams()
	assert.Equal(t, "Tools", params["category"])
	assert.Equal(t, "5.5", params["min_price"])
	assert.Equal(t, "1", params["page"])
	assert.NotContains(t, params, "max_price")
}

func TestSearchParams(t *testing.T) {
	p := SearchParams{Term: "widget"}.Normalize()
	assert.False(t, p.HasFilters())
	assert.NoError(t, p.Validate())

	p.MinPrice = ptr(5.0)
	assert.True(t, p.HasFilters())
	assert.Equal(t, "5", p.CacheParams()["min_price"])

	p.MaxPrice = ptr(1.0)
	assert.Error(t, p.Validate())
}
