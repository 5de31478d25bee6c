// Package store provides an interface for product storage operations.
package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ProductStore is an interface for product storage operations.
// Every read and conditional write only sees products that are not soft-deleted.
type ProductStore interface {
	// Create adds a new product to the system.
	// Returns a *ConstraintError wrapping ErrDuplicate or ErrConstraint when the store rejects the row.
	Create(ctx context.Context, params CreateParams) (*Product, error)

	// FindAll returns a page of products ordered by ID.
	// Returns an empty slice if no products exist.
	FindAll(ctx context.Context, offset, limit int32) ([]Product, error)

	// Count returns the number of products.
	Count(ctx context.Context) (int64, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*Product, error)

	// FindByIDs returns the products matching ids.
	// Returns an empty slice if none of them exist.
	FindByIDs(ctx context.Context, ids []int64) ([]Product, error)

	// Update applies the non-nil fields of params to the product.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, id int64, params UpdateParams) (*Product, error)

	// SoftDelete marks the product as deleted and returns it.
	// Returns ErrProductNotFound if no product exists with the given ID.
	SoftDelete(ctx context.Context, id int64) (*Product, error)

	// EnsureUniqueFields enforces uniqueness of the given columns across products.
	EnsureUniqueFields(ctx context.Context, fields []string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Product is a persisted catalog entry.
type Product struct {
	ID          int64
	Name        string
	Description *string
	Price       decimal.Decimal
	Stock       *int32
	Deleted     bool
}

type CreateParams struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	Stock       *int32
}

type UpdateParams struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int32
	// ClearDescription and ClearStock set the column to NULL. They win over a value.
	ClearDescription bool
	ClearStock       bool
}

// IsEmpty reports whether no field is set or cleared.
func (p UpdateParams) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil &&
		!p.ClearDescription && !p.ClearStock
}

// uniqueCapableFields lists the columns that can carry a uniqueness rule.
var uniqueCapableFields = []string{"name", "description"}

// ValidateUniqueFields checks that every field can be made unique.
func ValidateUniqueFields(fields []string) error {
	for _, f := range fields {
		if !slices.Contains(uniqueCapableFields, f) {
			return fmt.Errorf("field %q cannot be made unique, allowed: %v", f, uniqueCapableFields)
		}
	}
	return nil
}

func uniqueIndexName(field string) string {
	return "products_" + field + "_unique_idx"
}
