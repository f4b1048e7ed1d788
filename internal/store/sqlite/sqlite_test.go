package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceroware/ceropos/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// A single connection keeps the in-memory database alive across queries.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func sampleDataset() domain.Dataset {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Dataset{
		Products: []domain.Product{
			{ID: "p1", Name: "Coffee", Description: "500g", Barcode: "789", CategoryID: "c1",
				Price: 12.5, Cost: 7, Stock: 40, Image: "coffee.png", CreatedAt: created, UpdatedAt: created},
			{ID: "p2", Name: "Tea", Price: 8, Stock: 15, CreatedAt: created, UpdatedAt: created},
		},
		Categories: []domain.Category{{ID: "c1", Name: "Drinks", Description: "Hot and cold"}},
		Sales: []domain.Sale{{
			ID:       "s1",
			ClientID: "k1",
			Items: []domain.SaleItem{
				{ProductID: "p1", ProductName: "Coffee", Quantity: 2, UnitPrice: 12.5, Subtotal: 25},
				{ProductID: "p2", ProductName: "Tea", Quantity: 1, UnitPrice: 8, Subtotal: 8},
			},
			Total:         33,
			PaymentMethod: "cash",
			CreatedAt:     created,
		}},
		Suppliers: []domain.Supplier{{ID: "v1", Name: "Beans Ltda", Email: "sales@beans.example"}},
		Clients:   []domain.Client{{ID: "k1", Name: "Maria", Phone: "555-0101"}},
	}
}

func TestReplaceAllAndGetAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sampleDataset()

	require.NoError(t, s.ReplaceAll(ctx, want))

	products, err := s.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Products, products)

	categories, err := s.GetAllCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Categories, categories)

	sales, err := s.GetAllSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Sales, sales)

	suppliers, err := s.GetAllSuppliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Suppliers, suppliers)

	clients, err := s.GetAllClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Clients, clients)
}

func TestReplaceAllReplacesExistingData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))

	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	next := domain.Dataset{
		Products:   []domain.Product{{ID: "p9", Name: "Mate", Price: 5, CreatedAt: created, UpdatedAt: created}},
		Categories: []domain.Category{},
		Sales:      []domain.Sale{},
		Suppliers:  []domain.Supplier{},
		Clients:    []domain.Client{},
	}
	require.NoError(t, s.ReplaceAll(ctx, next))

	products, err := s.GetAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p9", products[0].ID)

	sales, err := s.GetAllSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestReplaceAllRollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, sampleDataset()))

	// Duplicate product IDs violate the primary key mid-transaction.
	bad := sampleDataset()
	bad.Products = append(bad.Products, bad.Products[0])
	err := s.ReplaceAll(ctx, bad)
	require.Error(t, err)

	products, err := s.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2, "previous dataset must survive a failed swap")
}

func TestGetAllOnEmptyStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	products, err := s.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	sales, err := s.GetAllSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestAddHelpersAssignIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	p, err := s.AddProduct(ctx, domain.Product{Name: "Sugar", Price: 3, CreatedAt: created, UpdatedAt: created})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	c, err := s.AddCategory(ctx, domain.Category{Name: "Pantry"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	v, err := s.AddSupplier(ctx, domain.Supplier{Name: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	k, err := s.AddClient(ctx, domain.Client{Name: "Joao"})
	require.NoError(t, err)
	assert.NotEmpty(t, k.ID)

	sale, err := s.AddSale(ctx, domain.Sale{
		ClientID:      k.ID,
		Items:         []domain.SaleItem{{ProductID: p.ID, ProductName: "Sugar", Quantity: 3, UnitPrice: 3, Subtotal: 9}},
		Total:         9,
		PaymentMethod: "card",
		CreatedAt:     created,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sale.ID)

	sales, err := s.GetAllSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Len(t, sales[0].Items, 1)
}
