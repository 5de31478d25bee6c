// Package service provides the implementation of the product catalog business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/abgdnv/product-catalog/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// ProductService defines the catalog operations.
// Every error it returns is a *errors.Error.
type ProductService interface {
	// Create adds a new product. Fails with Conflict when a unique field is already taken.
	Create(ctx context.Context, dto CreateProductDto) (*ProductDto, error)

	// FindAll returns a page of products. Fails with NotFound past the last page.
	FindAll(ctx context.Context, pagination PaginationDto) (*ProductPage, error)

	// FindOne returns a single product. Fails with NotFound if it is absent or deleted.
	FindOne(ctx context.Context, id int64) (*ProductDto, error)

	// Update applies a partial update. Fails with InvalidArgument on an empty patch.
	Update(ctx context.Context, id int64, patch ProductPatch) (*ProductDto, error)

	// Remove soft-deletes a product and returns it.
	Remove(ctx context.Context, id int64) (*ProductDto, error)

	// ValidateIDs returns the products matching ids. Fails with NotFound if any id is unknown.
	ValidateIDs(ctx context.Context, ids []int64) ([]ProductDto, error)
}

// Service implements ProductService on top of a ProductStore.
type Service struct {
	store           store.ProductStore
	logger          *slog.Logger
	productsCreated metric.Int64Counter
	productsRemoved metric.Int64Counter
}

// NewService creates a new instance of ProductService with the provided store.
func NewService(productStore store.ProductStore, logger *slog.Logger) *Service {
	meter := otel.Meter("product-catalog")
	productsCreated, err := meter.Int64Counter("products_created", metric.WithDescription("Total number of created products"))
	if err != nil {
		panic(fmt.Sprintf("failed to create products_created counter: %v", err))
	}
	productsRemoved, err := meter.Int64Counter("products_removed", metric.WithDescription("Total number of soft-deleted products"))
	if err != nil {
		panic(fmt.Sprintf("failed to create products_removed counter: %v", err))
	}
	return &Service{
		store:           productStore,
		logger:          logger.With("component", "service"),
		productsCreated: productsCreated,
		productsRemoved: productsRemoved,
	}
}

// Create persists a new product.
func (s *Service) Create(ctx context.Context, dto CreateProductDto) (*ProductDto, error) {
	params := store.CreateParams{
		Name:        dto.Name,
		Description: dto.Description,
		Stock:       dto.Stock,
	}
	if dto.Price != nil {
		params.Price = *dto.Price
	}
	product, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, s.storeError(ctx, "create", err)
	}
	s.productsCreated.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Product created", "id", product.ID, "name", product.Name)
	return toDto(product), nil
}

// FindAll returns the requested page. The page and the total count are fetched concurrently.
func (s *Service) FindAll(ctx context.Context, pagination PaginationDto) (*ProductPage, error) {
	page, limit := pagination.resolve()
	offset := offsetOf(page, limit)

	var (
		products []store.Product
		total    int64
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.store.FindAll(gCtx, offset, int32(limit))
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Error retrieving products", "error", err)
		return nil, perrors.Wrap(perrors.Internal, err, "Error retrieving products")
	}

	lastPage := lastPageOf(total, limit)
	if int64(page) > lastPage {
		s.logger.WarnContext(ctx, "Page not found", "page", page, "last_page", lastPage)
		return nil, perrors.New(perrors.NotFound, "Page not found")
	}

	return &ProductPage{
		Data: toDtos(products),
		Meta: PageMeta{
			TotalProducts: total,
			Page:          page,
			LastPage:      lastPage,
		},
	}, nil
}

// FindOne returns the product with the given id.
func (s *Service) FindOne(ctx context.Context, id int64) (*ProductDto, error) {
	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "find", err, slog.Int64("id", id))
	}
	return toDto(product), nil
}

// Update checks that the product exists and applies the patch to it.
func (s *Service) Update(ctx context.Context, id int64, patch ProductPatch) (*ProductDto, error) {
	if patch.IsEmpty() {
		s.logger.WarnContext(ctx, "Empty update rejected", "id", id)
		return nil, perrors.New(perrors.InvalidArgument, "Bad request, no data provided")
	}
	if _, err := s.FindOne(ctx, id); err != nil {
		return nil, err
	}
	// The write is conditional on the product still being active.
	updated, err := s.store.Update(ctx, id, patch.toParams())
	if err != nil {
		return nil, s.storeError(ctx, "update", err, slog.Int64("id", id))
	}
	s.logger.InfoContext(ctx, "Product updated", "id", updated.ID)
	return toDto(updated), nil
}

// Remove soft-deletes the product with the given id.
func (s *Service) Remove(ctx context.Context, id int64) (*ProductDto, error) {
	if _, err := s.FindOne(ctx, id); err != nil {
		return nil, err
	}
	removed, err := s.store.SoftDelete(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "remove", err, slog.Int64("id", id))
	}
	s.productsRemoved.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Product removed", "id", removed.ID)
	return toDto(removed), nil
}

// ValidateIDs returns the products for the de-duplicated ids.
func (s *Service) ValidateIDs(ctx context.Context, ids []int64) ([]ProductDto, error) {
	unique := dedupe(ids)
	products, err := s.store.FindByIDs(ctx, unique)
	if err != nil {
		return nil, s.storeError(ctx, "validate", err)
	}
	if len(products) != len(unique) {
		missing := missingIDs(unique, products)
		s.logger.WarnContext(ctx, "Some products were not found", "missing", missing)
		return nil, perrors.New(perrors.NotFound, "Some products were not found: "+joinIDs(missing))
	}
	return toDtos(products), nil
}

// storeError logs err and translates it into the catalog taxonomy.
func (s *Service) storeError(ctx context.Context, op string, err error, attrs ...any) error {
	attrs = append(attrs, slog.String("op", op), slog.Any("error", err))

	if errors.Is(err, perrors.ErrProductNotFound) {
		s.logger.WarnContext(ctx, "Product not found", attrs...)
		return perrors.Wrap(perrors.NotFound, err, "Product not found")
	}

	var constraintErr *store.ConstraintError
	if errors.As(err, &constraintErr) {
		s.logger.WarnContext(ctx, "Product rejected by store", attrs...)
		if errors.Is(err, perrors.ErrDuplicate) {
			field := constraintErr.Field
			if field == "" {
				field = "unique field"
			}
			return perrors.Wrap(perrors.Conflict, err, fmt.Sprintf("Product with this %s already exists", field))
		}
		return perrors.Wrap(perrors.InvalidArgument, err, "Bad request: "+constraintErr.Detail)
	}

	s.logger.ErrorContext(ctx, "Store operation failed", attrs...)
	return perrors.Wrap(perrors.Internal, err, fmt.Sprintf("Error trying to %s product", op))
}

// offsetOf returns the number of rows before page. Offsets past math.MaxInt32 are
// clamped: such a page is beyond any last page and the count decides.
func offsetOf(page, limit int) int32 {
	skipped := int64(page - 1)
	if skipped > math.MaxInt32/int64(limit) {
		return math.MaxInt32
	}
	return int32(skipped * int64(limit))
}

func lastPageOf(total int64, limit int) int64 {
	l := int64(limit)
	return (total + l - 1) / l
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func missingIDs(ids []int64, found []store.Product) []int64 {
	present := make(map[int64]struct{}, len(found))
	for _, p := range found {
		present[p.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
