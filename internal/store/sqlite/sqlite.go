// Package sqlite provides the SQLite-backed implementation of the backup
// DataStore port: the live relational dataset of products, categories,
// sales, suppliers and clients.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ceroware/ceropos/internal/backup"
	"github.com/ceroware/ceropos/internal/domain"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var _ backup.DataStore = (*Store)(nil)

// Store implements backup.DataStore using SQLite (via database/sql). It is
// safe for concurrent use; database/sql manages connection pooling and
// serialization.
type Store struct{ db *sql.DB }

// New constructs a Store, initializing the required schema if absent.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
description TEXT NOT NULL DEFAULT '',
barcode TEXT NOT NULL DEFAULT '',
category_id TEXT NOT NULL DEFAULT '',
price REAL NOT NULL DEFAULT 0,
cost REAL NOT NULL DEFAULT 0,
stock INTEGER NOT NULL DEFAULT 0,
image TEXT NOT NULL DEFAULT '',
created_at INTEGER NOT NULL,
updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS suppliers (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
phone TEXT NOT NULL DEFAULT '',
email TEXT NOT NULL DEFAULT '',
address TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS clients (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
phone TEXT NOT NULL DEFAULT '',
email TEXT NOT NULL DEFAULT '',
address TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sales (
id TEXT PRIMARY KEY,
client_id TEXT NOT NULL DEFAULT '',
payment_method TEXT NOT NULL DEFAULT '',
total REAL NOT NULL DEFAULT 0,
created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sale_items (
sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
product_id TEXT NOT NULL,
product_name TEXT NOT NULL DEFAULT '',
quantity INTEGER NOT NULL,
unit_price REAL NOT NULL,
subtotal REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);`
	_, err := s.db.Exec(schema)
	return err
}

// GetAllProducts returns every product ordered by name.
func (s *Store) GetAllProducts(ctx context.Context) ([]domain.Product, error) {
	const q = `SELECT id, name, description, barcode, category_id, price, cost, stock, image, created_at, updated_at FROM products ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Product{}
	for rows.Next() {
		var (
			p                  domain.Product
			createdAt, updated int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Barcode, &p.CategoryID,
			&p.Price, &p.Cost, &p.Stock, &p.Image, &createdAt, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetAllCategories returns every category ordered by name.
func (s *Store) GetAllCategories(ctx context.Context) ([]domain.Category, error) {
	const q = `SELECT id, name, description FROM categories ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetAllSuppliers returns every supplier ordered by name.
func (s *Store) GetAllSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	const q = `SELECT id, name, phone, email, address FROM suppliers ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Supplier{}
	for rows.Next() {
		var v domain.Supplier
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.Address); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetAllClients returns every client ordered by name.
func (s *Store) GetAllClients(ctx context.Context) ([]domain.Client, error) {
	const q = `SELECT id, name, phone, email, address FROM clients ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Client{}
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetAllSales returns every sale with its items, oldest first.
func (s *Store) GetAllSales(ctx context.Context) ([]domain.Sale, error) {
	const q = `SELECT id, client_id, payment_method, total, created_at FROM sales ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Sale{}
	index := map[string]int{}
	for rows.Next() {
		var (
			sale      domain.Sale
			createdAt int64
		)
		if err := rows.Scan(&sale.ID, &sale.ClientID, &sale.PaymentMethod, &sale.Total, &createdAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = time.Unix(createdAt, 0).UTC()
		sale.Items = []domain.SaleItem{}
		index[sale.ID] = len(out)
		out = append(out, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qi = `SELECT sale_id, product_id, product_name, quantity, unit_price, subtotal FROM sale_items ORDER BY rowid`
	itemRows, err := s.db.QueryContext(ctx, qi)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			saleID string
			item   domain.SaleItem
		)
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			out[i].Items = append(out[i].Items, item)
		}
	}
	return out, itemRows.Err()
}

// ReplaceAll swaps the entire dataset inside one transaction. Any failure
// rolls the whole swap back, leaving the previous dataset intact.
func (s *Store) ReplaceAll(ctx context.Context, data domain.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"sale_items", "sales", "products", "categories", "suppliers", "clients"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range data.Products {
		if err := insertProduct(ctx, tx, p); err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
	}
	for _, c := range data.Categories {
		if err := insertCategory(ctx, tx, c); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	for _, v := range data.Suppliers {
		if err := insertSupplier(ctx, tx, v); err != nil {
			return fmt.Errorf("insert supplier %s: %w", v.ID, err)
		}
	}
	for _, c := range data.Clients {
		if err := insertClient(ctx, tx, c); err != nil {
			return fmt.Errorf("insert client %s: %w", c.ID, err)
		}
	}
	for _, sale := range data.Sales {
		if err := insertSale(ctx, tx, sale); err != nil {
			return fmt.Errorf("insert sale %s: %w", sale.ID, err)
		}
	}
	return tx.Commit()
}

// AddProduct inserts a single product, assigning an ID when empty.
func (s *Store) AddProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error { return insertProduct(ctx, tx, p) })
	return p, err
}

// AddCategory inserts a single category, assigning an ID when empty.
func (s *Store) AddCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error { return insertCategory(ctx, tx, c) })
	return c, err
}

// AddSupplier inserts a single supplier, assigning an ID when empty.
func (s *Store) AddSupplier(ctx context.Context, v domain.Supplier) (domain.Supplier, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error { return insertSupplier(ctx, tx, v) })
	return v, err
}

// AddClient inserts a single client, assigning an ID when empty.
func (s *Store) AddClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error { return insertClient(ctx, tx, c) })
	return c, err
}

// AddSale inserts a sale with its items, assigning an ID when empty.
func (s *Store) AddSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error { return insertSale(ctx, tx, sale) })
	return sale, err
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertProduct(ctx context.Context, tx *sql.Tx, p domain.Product) error {
	const q = `INSERT INTO products (id, name, description, barcode, category_id, price, cost, stock, image, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	_, err := tx.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Barcode, p.CategoryID,
		p.Price, p.Cost, p.Stock, p.Image, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	return err
}

func insertCategory(ctx context.Context, tx *sql.Tx, c domain.Category) error {
	const q = `INSERT INTO categories (id, name, description) VALUES (?,?,?)`
	_, err := tx.ExecContext(ctx, q, c.ID, c.Name, c.Description)
	return err
}

func insertSupplier(ctx context.Context, tx *sql.Tx, v domain.Supplier) error {
	const q = `INSERT INTO suppliers (id, name, phone, email, address) VALUES (?,?,?,?,?)`
	_, err := tx.ExecContext(ctx, q, v.ID, v.Name, v.Phone, v.Email, v.Address)
	return err
}

func insertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	const q = `INSERT INTO clients (id, name, phone, email, address) VALUES (?,?,?,?,?)`
	_, err := tx.ExecContext(ctx, q, c.ID, c.Name, c.Phone, c.Email, c.Address)
	return err
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	const q = `INSERT INTO sales (id, client_id, payment_method, total, created_at) VALUES (?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, q, sale.ID, sale.ClientID, sale.PaymentMethod, sale.Total, sale.CreatedAt.Unix()); err != nil {
		return err
	}
	const qi = `INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, subtotal) VALUES (?,?,?,?,?,?)`
	for _, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, qi, sale.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal); err != nil {
			return err
		}
	}
	return nil
}
