package service

import (
	"bytes"
	"encoding/json"

	"github.com/abgdnv/product-catalog/internal/store"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, e.g. "price": 9.99.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 20
)

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int32          `json:"stock"`
	Deleted     bool            `json:"deleted"`
}

// CreateProductDto represents the data transfer object for creating a new product.
type CreateProductDto struct {
	Name        string           `json:"name"        validate:"required"`
	Description *string          `json:"description" validate:"omitnil"`
	Price       *decimal.Decimal `json:"price"       validate:"required,price"`
	Stock       *int32           `json:"stock"       validate:"omitnil,min=0"`
}

// ProductPatch holds the fields of a partial update. Absent fields are left untouched;
// an explicit null clears description or stock.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty"        validate:"omitnil,min=1"`
	Description *string          `json:"description,omitempty" validate:"omitnil"`
	Price       *decimal.Decimal `json:"price,omitempty"       validate:"omitnil,price"`
	Stock       *int32           `json:"stock,omitempty"       validate:"omitnil,min=0"`

	ClearDescription bool `json:"-"`
	ClearStock       bool `json:"-"`
}

func (p *ProductPatch) UnmarshalJSON(data []byte) error {
	type plain ProductPatch
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	p.ClearDescription = isNull(members, "description")
	p.ClearStock = isNull(members, "stock")
	return nil
}

// isNull reports whether key is present in members with a null value.
func isNull(members map[string]json.RawMessage, key string) bool {
	raw, ok := members[key]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// IsEmpty reports whether the patch carries no field.
func (p ProductPatch) IsEmpty() bool {
	return p.toParams().IsEmpty()
}

func (p ProductPatch) toParams() store.UpdateParams {
	return store.UpdateParams{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,

		ClearDescription: p.ClearDescription,
		ClearStock:       p.ClearStock,
	}
}

// UpdateProductDto is the update request: the target id plus the patch.
type UpdateProductDto struct {
	ID int64 `json:"id" validate:"required,min=1"`
	ProductPatch
}

// UnmarshalJSON reads the id and hands the body to ProductPatch, whose decoder
// would otherwise be promoted and drop the id.
func (u *UpdateProductDto) UnmarshalJSON(data []byte) error {
	var target struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &target); err != nil {
		return err
	}
	u.ID = target.ID
	return u.ProductPatch.UnmarshalJSON(data)
}

// PaginationDto selects a page of the catalog. Missing or non-positive values fall back to the defaults.
type PaginationDto struct {
	Page  *int `json:"page"  validate:"omitnil,min=1"`
	Limit *int `json:"limit" validate:"omitnil,min=1,max=20"`
}

func (p PaginationDto) resolve() (page, limit int) {
	page, limit = DefaultPage, DefaultLimit
	if p.Page != nil && *p.Page > 0 {
		page = *p.Page
	}
	if p.Limit != nil && *p.Limit > 0 {
		limit = *p.Limit
	}
	return page, limit
}

// ValidateProductsDto carries the ids of a batch validation.
// It decodes from either {"ids": [1, 2]} or a bare [1, 2].
type ValidateProductsDto struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,min=1"`
}

func (v *ValidateProductsDto) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &v.IDs)
	}
	type plain ValidateProductsDto
	return json.Unmarshal(data, (*plain)(v))
}

// PageMeta describes the position of a page in the catalog.
type PageMeta struct {
	TotalProducts int64 `json:"totalProducts"`
	Page          int   `json:"page"`
	LastPage      int64 `json:"lastPage"`
}

// ProductPage is a page of products and its metadata.
type ProductPage struct {
	Data []ProductDto `json:"data"`
	Meta PageMeta     `json:"meta"`
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		Deleted:     product.Deleted,
	}
}

func toDtos(products []store.Product) []ProductDto {
	dtos := make([]ProductDto, len(products))
	for i := range products {
		dtos[i] = *toDto(&products[i])
	}
	return dtos
}
