package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// notDeleted is the soft-delete predicate shared by every query.
const notDeleted = "deleted = FALSE"

const productColumns = "id, name, description, price, stock, deleted"

const (
	createQuery = `INSERT INTO products (name, description, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING ` + productColumns

	findAllQuery = `SELECT ` + productColumns + `
FROM products
WHERE ` + notDeleted + `
ORDER BY id
LIMIT $1 OFFSET $2`

	countQuery = `SELECT count(*) FROM products WHERE ` + notDeleted

	findByIDQuery = `SELECT ` + productColumns + `
FROM products
WHERE id = $1 AND ` + notDeleted

	findByIDsQuery = `SELECT ` + productColumns + `
FROM products
WHERE id = ANY($1) AND ` + notDeleted + `
ORDER BY id`

	updateQuery = `UPDATE products
SET name        = COALESCE($2, name),
    description = CASE WHEN $6 THEN NULL ELSE COALESCE($3, description) END,
    price       = COALESCE($4, price),
    stock       = CASE WHEN $7 THEN NULL ELSE COALESCE($5, stock) END
WHERE id = $1 AND ` + notDeleted + `
RETURNING ` + productColumns

	softDeleteQuery = `UPDATE products
SET deleted = TRUE
WHERE id = $1 AND ` + notDeleted + `
RETURNING ` + productColumns
)

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{
		db: dbp,
	}
}

// Ping checks the database connection.
func (p *PgStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Create adds a new product to the system.
func (p *PgStore) Create(ctx context.Context, params CreateParams) (*Product, error) {
	row := p.db.QueryRow(ctx, createQuery, params.Name, params.Description, toNumeric(params.Price), params.Stock)
	product, err := scanProduct(row)
	if err != nil {
		return nil, mapWriteError("create product", err)
	}
	return product, nil
}

// FindAll retrieves products with pagination support.
// It returns a slice of products, which may be empty if no products exist.
func (p *PgStore) FindAll(ctx context.Context, offset, limit int32) ([]Product, error) {
	rows, err := p.db.Query(ctx, findAllQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	return products, nil
}

// Count returns the number of products.
func (p *PgStore) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := p.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return total, nil
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id int64) (*Product, error) {
	product, err := scanProduct(p.db.QueryRow(ctx, findByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// FindByIDs retrieves products by IDs.
// It returns a slice of products, which may be empty if no products exist.
func (p *PgStore) FindByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	rows, err := p.db.Query(ctx, findByIDsQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	return products, nil
}

// Update modifies an existing product's details.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) Update(ctx context.Context, id int64, params UpdateParams) (*Product, error) {
	var price *pgtype.Numeric
	if params.Price != nil {
		n := toNumeric(*params.Price)
		price = &n
	}
	row := p.db.QueryRow(ctx, updateQuery, id, params.Name, params.Description, price, params.Stock,
		params.ClearDescription, params.ClearStock)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, mapWriteError("update product", err)
	}
	return product, nil
}

// SoftDelete flags a product as deleted.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) SoftDelete(ctx context.Context, id int64) (*Product, error) {
	product, err := scanProduct(p.db.QueryRow(ctx, softDeleteQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}
	return product, nil
}

// EnsureUniqueFields creates a partial unique index over non-deleted products for every
// configured field and drops the indexes of the fields that are no longer configured.
func (p *PgStore) EnsureUniqueFields(ctx context.Context, fields []string) error {
	if err := ValidateUniqueFields(fields); err != nil {
		return err
	}
	for _, field := range uniqueCapableFields {
		var stmt string
		if slices.Contains(fields, field) {
			stmt = fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON products (%s) WHERE %s",
				uniqueIndexName(field), field, notDeleted)
		} else {
			stmt = fmt.Sprintf("DROP INDEX IF EXISTS %s", uniqueIndexName(field))
		}
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply unique rule for field %s: %w", field, err)
		}
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		product Product
		price   pgtype.Numeric
	)
	err := row.Scan(&product.ID, &product.Name, &product.Description, &price, &product.Stock, &product.Deleted)
	if err != nil {
		return nil, err
	}
	product.Price = fromNumeric(price)
	return &product, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		product, err := scanProduct(row)
		if err != nil {
			return Product{}, err
		}
		return *product, nil
	})
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// mapWriteError classifies errors raised by inserts and updates.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if pgErr.Code == uniqueViolation {
		return &ConstraintError{
			Field:  fieldFromIndex(pgErr.ConstraintName),
			Detail: pgErr.Detail,
			Err:    perrors.ErrDuplicate,
		}
	}
	return &ConstraintError{
		Field:  pgErr.ColumnName,
		Detail: pgErr.Message,
		Err:    perrors.ErrConstraint,
	}
}

// fieldFromIndex recovers the column name from a unique index created by EnsureUniqueFields.
func fieldFromIndex(name string) string {
	for _, field := range uniqueCapableFields {
		if name == uniqueIndexName(field) {
			return field
		}
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, "products_"), "_key")
}
