package backup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ceroware/ceropos/internal/archive"
	"github.com/ceroware/ceropos/internal/domain"
	"github.com/ceroware/ceropos/internal/events"
)

// filenameStamp is the timestamp layout embedded in suggested filenames.
// Colons are avoided so names stay valid on every filesystem.
const filenameStamp = "2006-01-02T15-04-05"

// Backup is a built archive plus its suggested filename.
type Backup struct {
	Bytes    []byte
	Filename string
}

// Outcome reports what a restore applied.
type Outcome struct {
	Counts         domain.Counts
	ImagesRestored int
	ImagesSkipped  int
	Encrypted      bool
}

// Service orchestrates backup creation and restoration against the injected
// stores. Bus and Log are optional.
type Service struct {
	Data     DataStore
	Images   ImageStore
	Settings SettingsStore
	Clock    Clock
	Codec    *archive.Codec
	Bus      *events.Bus
	Log      *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Service) publish(t events.Type, filename string, err error) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(events.Event{Type: t, At: s.Clock.Now(), Filename: filename, Err: err})
}

// CreateBackup gathers the live dataset and settings, builds an archive, and
// returns it with a timestamped filename. A non-empty password encrypts the
// database and settings segments; the filename then carries the advisory
// protected marker.
func (s *Service) CreateBackup(ctx context.Context, password string) (*Backup, error) {
	log := s.log().With("domain", "backup", "action", "create")
	s.publish(events.BackupStarted, "", nil)

	data, err := s.collect(ctx)
	if err != nil {
		s.publish(events.BackupFailed, "", err)
		return nil, err
	}

	settings, err := s.Settings.Settings()
	if err != nil {
		// Settings are cosmetic; a backup without them is still a backup.
		log.Warn("settings unavailable, backing up defaults", "error", err)
		settings = domain.DefaultSettings()
	}

	raw, err := s.Codec.Build(data, settings, s.Images, password)
	if err != nil {
		s.publish(events.BackupFailed, "", err)
		return nil, fmt.Errorf("build archive: %w", err)
	}

	name := "ceropos_backup_" + s.Clock.Now().Format(filenameStamp)
	if password != "" {
		name += archive.ProtectedMarker
	}
	name += archive.Extension

	log.Info("backup built", "filename", name, "bytes", len(raw), "encrypted", password != "")
	s.publish(events.BackupCompleted, name, nil)
	return &Backup{Bytes: raw, Filename: name}, nil
}

// RestoreBackup parses the archive and swaps the live dataset and settings.
// Dataset replacement atomicity is the DataStore's contract. A settings
// write failure degrades with a warning; the records are already applied.
func (s *Service) RestoreBackup(ctx context.Context, raw []byte, password string) (*Outcome, error) {
	log := s.log().With("domain", "backup", "action", "restore")
	s.publish(events.RestoreStarted, "", nil)

	res, err := s.Codec.Parse(raw, password, s.Images)
	if err != nil {
		s.publish(events.RestoreFailed, "", err)
		return nil, err
	}

	if err := s.Data.ReplaceAll(ctx, res.Data); err != nil {
		s.publish(events.RestoreFailed, "", err)
		return nil, fmt.Errorf("replace dataset: %w", err)
	}
	if err := s.Settings.SetSettings(res.Settings); err != nil {
		log.Warn("restored records but settings write failed", "error", err)
	}

	out := &Outcome{
		Counts:         res.Data.Counts(),
		ImagesRestored: res.ImagesRestored,
		ImagesSkipped:  res.ImagesSkipped,
		Encrypted:      res.Metadata.Encrypted,
	}
	log.Info("restore applied",
		"products", out.Counts.Products,
		"sales", out.Counts.Sales,
		"images_restored", out.ImagesRestored,
		"images_skipped", out.ImagesSkipped)
	s.publish(events.RestoreDone, "", nil)
	return out, nil
}

// collect pulls the five record collections from the data store.
func (s *Service) collect(ctx context.Context) (domain.Dataset, error) {
	var (
		data domain.Dataset
		err  error
	)
	if data.Products, err = s.Data.GetAllProducts(ctx); err != nil {
		return data, fmt.Errorf("collect products: %w", err)
	}
	if data.Categories, err = s.Data.GetAllCategories(ctx); err != nil {
		return data, fmt.Errorf("collect categories: %w", err)
	}
	if data.Sales, err = s.Data.GetAllSales(ctx); err != nil {
		return data, fmt.Errorf("collect sales: %w", err)
	}
	if data.Suppliers, err = s.Data.GetAllSuppliers(ctx); err != nil {
		return data, fmt.Errorf("collect suppliers: %w", err)
	}
	if data.Clients, err = s.Data.GetAllClients(ctx); err != nil {
		return data, fmt.Errorf("collect clients: %w", err)
	}
	return data, nil
}
