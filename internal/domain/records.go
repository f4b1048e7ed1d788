// Package domain holds the plain data records CeroPOS persists and backs up,
// along with small value types (backup frequency, settings) and sentinel
// errors shared by the adapter layers. No I/O, SQL, or crypto concerns
// belong here.
package domain

import "time"

// Product is a sellable item. Image, when non-empty, names a file in the
// product image store; the backup archive carries it under the
// images/products/ namespace.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Price       float64   `json:"price"`
	Cost        float64   `json:"cost"`
	Stock       int       `json:"stock"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Category groups products for display and reporting.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SaleItem is a single line of a sale. UnitPrice and Subtotal are captured
// at sale time so later price changes do not rewrite history.
type SaleItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Subtotal    float64 `json:"subtotal"`
}

// Sale is a completed transaction.
type Sale struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"clientId,omitempty"`
	Items         []SaleItem `json:"items"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Supplier is a product vendor contact.
type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Client is a customer contact.
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Dataset is the full relational snapshot that a backup carries and a
// restore replaces wholesale. Its JSON shape is the archive's
// database/data.json entry.
type Dataset struct {
	Products   []Product  `json:"products"`
	Categories []Category `json:"categories"`
	Sales      []Sale     `json:"sales"`
	Suppliers  []Supplier `json:"suppliers"`
	Clients    []Client   `json:"clients"`
}

// Counts summarizes collection sizes, used by archive inspection.
type Counts struct {
	Products   int `json:"products"`
	Categories int `json:"categories"`
	Sales      int `json:"sales"`
	Suppliers  int `json:"suppliers"`
	Clients    int `json:"clients"`
}

// Counts returns per-collection record counts for d.
func (d Dataset) Counts() Counts {
	return Counts{
		Products:   len(d.Products),
		Categories: len(d.Categories),
		Sales:      len(d.Sales),
		Suppliers:  len(d.Suppliers),
		Clients:    len(d.Clients),
	}
}
