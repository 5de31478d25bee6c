package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
)

// MemStore is an in-memory ProductStore. It mirrors the PostgreSQL schema rules:
// sequential IDs, soft deletion, check constraints and configurable unique fields.
type MemStore struct {
	mu       sync.RWMutex
	products []Product
	nextID   int64
	unique   []string
}

// NewMemStore creates an empty in-memory product store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// Ping always succeeds.
func (m *MemStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemStore) Create(_ context.Context, params CreateParams) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := Product{
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Stock:       params.Stock,
	}
	if err := m.check(candidate, 0); err != nil {
		return nil, err
	}
	candidate.ID = m.nextID
	m.nextID++
	m.products = append(m.products, *clone(candidate))
	return clone(candidate), nil
}

func (m *MemStore) FindAll(_ context.Context, offset, limit int32) ([]Product, error) {
	if offset < 0 || limit < 0 {
		// PostgreSQL rejects these with SQLSTATE 2201X / 2201W
		return nil, fmt.Errorf("invalid window: offset %d, limit %d", offset, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Product, 0, limit)
	skipped := int32(0)
	for _, p := range m.products {
		if p.Deleted {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if int32(len(result)) == limit {
			break
		}
		result = append(result, *clone(p))
	}
	return result, nil
}

func (m *MemStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, p := range m.products {
		if !p.Deleted {
			total++
		}
	}
	return total, nil
}

func (m *MemStore) FindByID(_ context.Context, id int64) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, perrors.ErrProductNotFound
	}
	return clone(m.products[i]), nil
}

func (m *MemStore) FindByIDs(_ context.Context, ids []int64) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Product, 0, len(ids))
	for _, p := range m.products {
		if !p.Deleted && slices.Contains(ids, p.ID) {
			result = append(result, *clone(p))
		}
	}
	return result, nil
}

func (m *MemStore) Update(_ context.Context, id int64, params UpdateParams) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, perrors.ErrProductNotFound
	}
	updated := m.products[i]
	if params.Name != nil {
		updated.Name = *params.Name
	}
	if params.Description != nil {
		updated.Description = params.Description
	}
	if params.Price != nil {
		updated.Price = *params.Price
	}
	if params.Stock != nil {
		updated.Stock = params.Stock
	}
	if params.ClearDescription {
		updated.Description = nil
	}
	if params.ClearStock {
		updated.Stock = nil
	}
	if err := m.check(updated, id); err != nil {
		return nil, err
	}
	m.products[i] = *clone(updated)
	return clone(updated), nil
}

func (m *MemStore) SoftDelete(_ context.Context, id int64) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, perrors.ErrProductNotFound
	}
	m.products[i].Deleted = true
	return clone(m.products[i]), nil
}

func (m *MemStore) EnsureUniqueFields(_ context.Context, fields []string) error {
	if err := ValidateUniqueFields(fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique = slices.Clone(fields)
	return nil
}

// indexOf returns the position of the non-deleted product with the given id, or -1.
func (m *MemStore) indexOf(id int64) int {
	for i, p := range m.products {
		if p.ID == id && !p.Deleted {
			return i
		}
	}
	return -1
}

// check applies the table constraints to candidate; selfID is excluded from uniqueness checks.
func (m *MemStore) check(candidate Product, selfID int64) error {
	switch {
	case candidate.Name == "":
		return &ConstraintError{Field: "name", Detail: "name must not be empty", Err: perrors.ErrConstraint}
	case candidate.Price.IsNegative():
		return &ConstraintError{Field: "price", Detail: "price must not be negative", Err: perrors.ErrConstraint}
	case candidate.Stock != nil && *candidate.Stock < 0:
		return &ConstraintError{Field: "stock", Detail: "stock must not be negative", Err: perrors.ErrConstraint}
	}
	for _, field := range m.unique {
		for _, p := range m.products {
			if p.Deleted || p.ID == selfID {
				continue
			}
			if sameValue(field, p, candidate) {
				return &ConstraintError{Field: field, Detail: field + " already exists", Err: perrors.ErrDuplicate}
			}
		}
	}
	return nil
}

func sameValue(field string, a, b Product) bool {
	switch field {
	case "name":
		return a.Name == b.Name
	case "description":
		return a.Description != nil && b.Description != nil && *a.Description == *b.Description
	}
	return false
}

func clone(p Product) *Product {
	c := p
	if p.Description != nil {
		d := *p.Description
		c.Description = &d
	}
	if p.Stock != nil {
		s := *p.Stock
		c.Stock = &s
	}
	return &c
}
