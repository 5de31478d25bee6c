package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/abgdnv/product-catalog/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func ptr[T any](v T) *T {
	return &v
}

func price(value string) *decimal.Decimal {
	return ptr(decimal.RequireFromString(value))
}

// newMemService returns a service over an in-memory store where name is unique.
func newMemService(t *testing.T) (*Service, *store.MemStore) {
	t.Helper()
	memStore := store.NewMemStore()
	require.NoError(t, memStore.EnsureUniqueFields(context.Background(), []string{"name"}))
	return NewService(memStore, discardLogger), memStore
}

func seed(t *testing.T, s *Service, n int) {
	t.Helper()
	for i := range n {
		_, err := s.Create(context.Background(), CreateProductDto{Name: "Product " + string(rune('A'+i)), Price: price("1.00")})
		require.NoError(t, err)
	}
}

func requireKind(t *testing.T, err error, kind perrors.Kind) {
	t.Helper()
	require.Error(t, err)
	var catalogErr *perrors.Error
	require.ErrorAs(t, err, &catalogErr, "every service error must be a catalog error")
	assert.Equal(t, kind, catalogErr.Kind, "unexpected kind for %v", err)
}

func Test_ProductService_Create(t *testing.T) {
	t.Run("Success - widget", func(t *testing.T) {
		// given
		svc, _ := newMemService(t)

		// when
		created, err := svc.Create(context.Background(), CreateProductDto{Name: "Widget", Price: price("9.99")})

		// then
		require.NoError(t, err)
		body, err := json.Marshal(created)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":1,"name":"Widget","description":null,"price":9.99,"stock":null,"deleted":false}`, string(body))
	})

	t.Run("Success - ids are never reused", func(t *testing.T) {
		svc, _ := newMemService(t)
		first, err := svc.Create(context.Background(), CreateProductDto{Name: "A", Price: price("1")})
		require.NoError(t, err)
		_, err = svc.Remove(context.Background(), first.ID)
		require.NoError(t, err)

		second, err := svc.Create(context.Background(), CreateProductDto{Name: "B", Price: price("1")})

		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)
		assert.False(t, second.Deleted)
	})

	t.Run("Error - duplicate name", func(t *testing.T) {
		svc, _ := newMemService(t)
		_, err := svc.Create(context.Background(), CreateProductDto{Name: "Widget", Price: price("1")})
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), CreateProductDto{Name: "Widget", Price: price("2")})

		requireKind(t, err, perrors.Conflict)
		assert.Equal(t, "Product with this name already exists", perrors.MessageOf(err))
		assert.ErrorIs(t, err, perrors.ErrDuplicate)
	})

	t.Run("Error - store rejects row", func(t *testing.T) {
		svc, _ := newMemService(t)

		_, err := svc.Create(context.Background(), CreateProductDto{Name: "", Price: price("1")})

		requireKind(t, err, perrors.InvalidArgument)
		assert.Contains(t, perrors.MessageOf(err), "Bad request")
	})
}

func Test_ProductService_FindAll(t *testing.T) {
	testCases := []struct {
		name         string
		seed         int
		pagination   PaginationDto
		expectedLen  int
		expectedMeta PageMeta
		expectedKind *perrors.Kind
	}{
		{
			name:         "defaults",
			seed:         25,
			pagination:   PaginationDto{},
			expectedLen:  10,
			expectedMeta: PageMeta{TotalProducts: 25, Page: 1, LastPage: 3},
		},
		{
			name:         "last partial page",
			seed:         25,
			pagination:   PaginationDto{Page: ptr(3)},
			expectedLen:  5,
			expectedMeta: PageMeta{TotalProducts: 25, Page: 3, LastPage: 3},
		},
		{
			name:         "custom limit",
			seed:         25,
			pagination:   PaginationDto{Page: ptr(2), Limit: ptr(20)},
			expectedLen:  5,
			expectedMeta: PageMeta{TotalProducts: 25, Page: 2, LastPage: 2},
		},
		{
			name:         "beyond last page",
			seed:         25,
			pagination:   PaginationDto{Page: ptr(4)},
			expectedKind: ptr(perrors.NotFound),
		},
		{
			name:         "empty catalog",
			seed:         0,
			pagination:   PaginationDto{},
			expectedKind: ptr(perrors.NotFound),
		},
		{
			name:         "huge page does not overflow",
			seed:         3,
			pagination:   PaginationDto{Page: ptr(1 << 40)},
			expectedKind: ptr(perrors.NotFound),
		},
		{
			name:         "page whose offset overflows int64",
			seed:         3,
			pagination:   PaginationDto{Page: ptr(1_000_000_000_000_000_000)},
			expectedKind: ptr(perrors.NotFound),
		},
		{
			name:         "max page with max limit",
			seed:         3,
			pagination:   PaginationDto{Page: ptr(math.MaxInt), Limit: ptr(MaxLimit)},
			expectedKind: ptr(perrors.NotFound),
		},
		{
			name:         "non-positive limit falls back to the default",
			seed:         25,
			pagination:   PaginationDto{Limit: ptr(0)},
			expectedLen:  10,
			expectedMeta: PageMeta{TotalProducts: 25, Page: 1, LastPage: 3},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			svc, _ := newMemService(t)
			seed(t, svc, tc.seed)

			// when
			page, err := svc.FindAll(context.Background(), tc.pagination)

			// then
			if tc.expectedKind != nil {
				requireKind(t, err, *tc.expectedKind)
				assert.Nil(t, page)
				return
			}
			require.NoError(t, err)
			assert.Len(t, page.Data, tc.expectedLen)
			assert.Equal(t, tc.expectedMeta, page.Meta)
		})
	}
}

func Test_ProductService_FindAll_ClampsOffset(t *testing.T) {
	mockStore := new(mockProductStore)
	mockStore.On("FindAll", mock.Anything, int32(math.MaxInt32), int32(10)).Return([]store.Product{}, nil)
	mockStore.On("Count", mock.Anything).Return(int64(3), nil)
	svc := NewService(mockStore, discardLogger)

	page, err := svc.FindAll(context.Background(), PaginationDto{Page: ptr(1_000_000_000_000_000_000)})

	requireKind(t, err, perrors.NotFound)
	assert.Nil(t, page)
	mockStore.AssertExpectations(t)
}

func Test_offsetOf(t *testing.T) {
	testCases := []struct {
		page, limit int
		want        int32
	}{
		{page: 1, limit: 10, want: 0},
		{page: 3, limit: 20, want: 40},
		{page: math.MaxInt32/10 + 1, limit: 10, want: math.MaxInt32 / 10 * 10},
		{page: math.MaxInt32, limit: 20, want: math.MaxInt32},
		{page: math.MaxInt, limit: 1, want: math.MaxInt32},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, offsetOf(tc.page, tc.limit), "page %d limit %d", tc.page, tc.limit)
	}
}

func Test_ProductService_FindOne(t *testing.T) {
	svc, _ := newMemService(t)
	seed(t, svc, 2)

	found, err := svc.FindOne(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.ID)
	assert.False(t, found.Deleted)

	_, err = svc.FindOne(context.Background(), 99)
	requireKind(t, err, perrors.NotFound)
	assert.Equal(t, "Product not found", perrors.MessageOf(err))
}

func Test_ProductService_Update(t *testing.T) {
	t.Run("Success - only given fields change", func(t *testing.T) {
		// given
		svc, _ := newMemService(t)
		seed(t, svc, 5)

		// when
		dto := UpdateProductDto{ID: 5, ProductPatch: ProductPatch{Price: price("3.00")}}
		updated, err := svc.Update(context.Background(), dto.ID, dto.ProductPatch)

		// then
		require.NoError(t, err)
		assert.Equal(t, int64(5), updated.ID)
		assert.Equal(t, "Product E", updated.Name)
		found, err := svc.FindOne(context.Background(), 5)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(3).Equal(found.Price))
	})

	t.Run("Success - null clears description and stock", func(t *testing.T) {
		svc, _ := newMemService(t)
		created, err := svc.Create(context.Background(), CreateProductDto{
			Name: "Widget", Description: ptr("blue"), Price: price("1"), Stock: ptr(int32(3)),
		})
		require.NoError(t, err)

		var dto UpdateProductDto
		require.NoError(t, json.Unmarshal([]byte(`{"id":1,"description":null,"stock":null}`), &dto))
		updated, err := svc.Update(context.Background(), dto.ID, dto.ProductPatch)

		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Nil(t, updated.Description)
		assert.Nil(t, updated.Stock)
	})

	t.Run("Error - empty patch", func(t *testing.T) {
		mockStore := new(mockProductStore)
		svc := NewService(mockStore, discardLogger)

		_, err := svc.Update(context.Background(), 1, ProductPatch{})

		requireKind(t, err, perrors.InvalidArgument)
		mockStore.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		mockStore.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error - not found", func(t *testing.T) {
		svc, _ := newMemService(t)

		_, err := svc.Update(context.Background(), 7, ProductPatch{Name: ptr("X")})

		requireKind(t, err, perrors.NotFound)
	})

	t.Run("Error - duplicate name", func(t *testing.T) {
		svc, _ := newMemService(t)
		seed(t, svc, 2)

		_, err := svc.Update(context.Background(), 2, ProductPatch{Name: ptr("Product A")})

		requireKind(t, err, perrors.Conflict)
	})

	t.Run("Error - removed between check and write", func(t *testing.T) {
		mockStore := new(mockProductStore)
		svc := NewService(mockStore, discardLogger)
		mockStore.On("FindByID", mock.Anything, int64(1)).Return(&store.Product{ID: 1, Name: "A"}, nil)
		mockStore.On("Update", mock.Anything, int64(1), mock.Anything).Return(nil, perrors.ErrProductNotFound)

		_, err := svc.Update(context.Background(), 1, ProductPatch{Name: ptr("B")})

		requireKind(t, err, perrors.NotFound)
		mockStore.AssertExpectations(t)
	})
}

func Test_ProductService_Remove(t *testing.T) {
	// given
	svc, memStore := newMemService(t)
	seed(t, svc, 2)

	// when
	removed, err := svc.Remove(context.Background(), 1)

	// then
	require.NoError(t, err)
	assert.True(t, removed.Deleted)

	_, err = svc.FindOne(context.Background(), 1)
	requireKind(t, err, perrors.NotFound)

	_, err = svc.Remove(context.Background(), 1)
	requireKind(t, err, perrors.NotFound)

	total, err := memStore.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func Test_ProductService_ValidateIDs(t *testing.T) {
	svc, _ := newMemService(t)
	seed(t, svc, 3)
	_, err := svc.Remove(context.Background(), 3)
	require.NoError(t, err)

	t.Run("Success - duplicates collapse", func(t *testing.T) {
		single, err := svc.ValidateIDs(context.Background(), []int64{1})
		require.NoError(t, err)
		twice, err := svc.ValidateIDs(context.Background(), []int64{1, 1})
		require.NoError(t, err)
		assert.Equal(t, single, twice)
	})

	t.Run("Success - several ids", func(t *testing.T) {
		found, err := svc.ValidateIDs(context.Background(), []int64{2, 1})
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("Error - removed and unknown ids", func(t *testing.T) {
		_, err := svc.ValidateIDs(context.Background(), []int64{1, 42, 3})
		requireKind(t, err, perrors.NotFound)
		assert.Equal(t, "Some products were not found: 3, 42", perrors.MessageOf(err))
	})
}

func Test_ProductService_StoreFailures(t *testing.T) {
	storeErr := errors.New("connection refused")
	testCases := []struct {
		name  string
		setup func(m *mockProductStore)
		call  func(s *Service) error
	}{
		{
			name: "create",
			setup: func(m *mockProductStore) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, storeErr)
			},
			call: func(s *Service) error {
				_, err := s.Create(context.Background(), CreateProductDto{Name: "A", Price: price("1")})
				return err
			},
		},
		{
			name: "find all - count fails",
			setup: func(m *mockProductStore) {
				m.On("FindAll", mock.Anything, int32(0), int32(10)).Return([]store.Product{}, nil)
				m.On("Count", mock.Anything).Return(int64(0), storeErr)
			},
			call: func(s *Service) error {
				_, err := s.FindAll(context.Background(), PaginationDto{})
				return err
			},
		},
		{
			name: "find one",
			setup: func(m *mockProductStore) {
				m.On("FindByID", mock.Anything, int64(1)).Return(nil, storeErr)
			},
			call: func(s *Service) error {
				_, err := s.FindOne(context.Background(), 1)
				return err
			},
		},
		{
			name: "remove",
			setup: func(m *mockProductStore) {
				m.On("FindByID", mock.Anything, int64(1)).Return(&store.Product{ID: 1}, nil)
				m.On("SoftDelete", mock.Anything, int64(1)).Return(nil, storeErr)
			},
			call: func(s *Service) error {
				_, err := s.Remove(context.Background(), 1)
				return err
			},
		},
		{
			name: "validate",
			setup: func(m *mockProductStore) {
				m.On("FindByIDs", mock.Anything, []int64{1}).Return(nil, storeErr)
			},
			call: func(s *Service) error {
				_, err := s.ValidateIDs(context.Background(), []int64{1})
				return err
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockStore := new(mockProductStore)
			tc.setup(mockStore)
			svc := NewService(mockStore, discardLogger)

			err := tc.call(svc)

			requireKind(t, err, perrors.Internal)
			assert.ErrorIs(t, err, storeErr)
		})
	}
}

// mockProductStore is a testify mock of store.ProductStore.
type mockProductStore struct {
	mock.Mock
}

func (m *mockProductStore) product(args mock.Arguments) (*store.Product, error) {
	var p *store.Product
	if args.Get(0) != nil {
		p = args.Get(0).(*store.Product)
	}
	return p, args.Error(1)
}

func (m *mockProductStore) products(args mock.Arguments) ([]store.Product, error) {
	var ps []store.Product
	if args.Get(0) != nil {
		ps = args.Get(0).([]store.Product)
	}
	return ps, args.Error(1)
}

func (m *mockProductStore) Create(ctx context.Context, params store.CreateParams) (*store.Product, error) {
	return m.product(m.Called(ctx, params))
}

func (m *mockProductStore) FindAll(ctx context.Context, offset, limit int32) ([]store.Product, error) {
	return m.products(m.Called(ctx, offset, limit))
}

func (m *mockProductStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockProductStore) FindByID(ctx context.Context, id int64) (*store.Product, error) {
	return m.product(m.Called(ctx, id))
}

func (m *mockProductStore) FindByIDs(ctx context.Context, ids []int64) ([]store.Product, error) {
	return m.products(m.Called(ctx, ids))
}

func (m *mockProductStore) Update(ctx context.Context, id int64, params store.UpdateParams) (*store.Product, error) {
	return m.product(m.Called(ctx, id, params))
}

func (m *mockProductStore) SoftDelete(ctx context.Context, id int64) (*store.Product, error) {
	return m.product(m.Called(ctx, id))
}

func (m *mockProductStore) EnsureUniqueFields(ctx context.Context, fields []string) error {
	return m.Called(ctx, fields).Error(0)
}

func (m *mockProductStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
