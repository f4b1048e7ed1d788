// Package backup contains the orchestration layer bridging the archive
// codec to the live application stores. It follows a hexagonal (ports &
// adapters) design: this package declares what the orchestrator needs, while
// adapter packages (SQLite data store, filesystem image store, JSON settings
// store) provide concrete implementations. No SQL or file-format concerns
// belong here.
package backup

import (
	"context"
	"time"

	"github.com/ceroware/ceropos/internal/domain"
)

// Clock abstracts time to enable deterministic testing of filenames and
// policy due-ness.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// DataStore is the storage port for the relational dataset. ReplaceAll must
// be atomic: either the whole snapshot applies or none of it does.
type DataStore interface {
	GetAllProducts(ctx context.Context) ([]domain.Product, error)
	GetAllCategories(ctx context.Context) ([]domain.Category, error)
	GetAllSales(ctx context.Context) ([]domain.Sale, error)
	GetAllSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetAllClients(ctx context.Context) ([]domain.Client, error)

	// ReplaceAll swaps the entire dataset in one transaction.
	ReplaceAll(ctx context.Context, data domain.Dataset) error
}

// ImageStore is the storage port for product image blobs. ReadImage returns
// domain.ErrImageNotFound when no blob exists for name.
type ImageStore interface {
	ReadImage(name string) ([]byte, error)
	WriteImage(name string, data []byte) error
	ListImages() ([]string, error)
}

// SettingsStore persists application settings.
type SettingsStore interface {
	Settings() (domain.Settings, error)
	SetSettings(domain.Settings) error
}
