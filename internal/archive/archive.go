// Package archive builds and parses the .cerobak backup container: a
// compressed zip holding plaintext metadata and version entries, a database
// segment, an optional settings segment, and product image blobs. The
// database and settings segments are independently password-encrypted
// through the crypto package when protection is requested.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ceroware/ceropos/internal/crypto"
	"github.com/ceroware/ceropos/internal/domain"
)

const (
	// FormatVersion is the newest archive layout this codec understands.
	// Archives declaring a higher backupFormatVersion are rejected rather
	// than misread.
	FormatVersion = 1

	// SchemaVersion is the database record schema carried in metadata.
	SchemaVersion = 1

	// AppID identifies archives produced by this application.
	AppID = "ceropos"

	// LegacyAppID is the pre-rename identifier. Archives carrying it are
	// accepted; nothing new is written with it.
	LegacyAppID = "cerobak"

	// MinAppVersion is the oldest application release able to restore
	// archives written by this codec.
	MinAppVersion = "1.0.0"

	// Extension is the archive file extension, kept from the Cerobak era.
	Extension = ".cerobak"

	// ProtectedMarker is appended to suggested filenames of encrypted
	// archives. Advisory only: the real gate is metadata.encrypted.
	ProtectedMarker = "_protegido"
)

// Entry names inside the container.
const (
	metadataEntry = "metadata.json"
	versionEntry  = "version.json"
	databaseEntry = "database/data.json"
	configEntry   = "config/settings.json"
	imagesPrefix  = "images/products/"
)

var (
	// ErrInvalidArchive indicates the container is not a readable archive
	// or lacks a required entry.
	ErrInvalidArchive = errors.New("invalid backup archive")

	// ErrUnsupportedVersion indicates the archive was written by a newer
	// application than this codec supports.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrPasswordRequired indicates the archive is encrypted and no
	// password was supplied. Callers surface this as a password prompt,
	// not a failure.
	ErrPasswordRequired = errors.New("password required")
)

// Metadata is the always-plaintext metadata.json entry.
type Metadata struct {
	App           string    `json:"app"`
	CreatedAt     time.Time `json:"createdAt"`
	AppVersion    string    `json:"appVersion"`
	SchemaVersion int       `json:"schemaVersion"`
	Encrypted     bool      `json:"encrypted"`
}

// VersionInfo is the always-plaintext version.json entry used for
// compatibility gating.
type VersionInfo struct {
	BackupFormatVersion int    `json:"backupFormatVersion"`
	MinAppVersion       string `json:"minAppVersion"`
}

// ImageReader supplies product image bytes at build time.
type ImageReader interface {
	ReadImage(name string) ([]byte, error)
}

// ImageWriter receives restored product image bytes at parse time.
type ImageWriter interface {
	WriteImage(name string, data []byte) error
}

// Restored is the fully reconstructed content of a parsed archive.
type Restored struct {
	Metadata       Metadata
	Version        VersionInfo
	Data           domain.Dataset
	Settings       domain.Settings
	ImagesRestored int
	ImagesSkipped  int
}

// ValidationResult reports a structural-only archive check.
type ValidationResult struct {
	Valid    bool
	Metadata *Metadata
	Err      error
}

// Summary is a read-only archive preview. For an encrypted archive inspected
// without a password, Counts stay zero and Protected is true.
type Summary struct {
	Metadata   Metadata
	Protected  bool
	Counts     domain.Counts
	ImageCount int
	SizeBytes  int64
}

// Codec serializes datasets into backup archives and back. The zero value is
// usable; Log defaults to slog.Default and Now to time.Now.
type Codec struct {
	AppVersion string
	Log        *slog.Logger
	Now        func() time.Time
}

func (c *Codec) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Build assembles an archive from the dataset, settings, and product images.
// When password is non-empty the database and settings segments are each
// encrypted independently (two envelopes, two salts) so a settings failure
// on restore can never block data recovery. Missing or unreadable images
// are skipped, never fatal.
func (c *Codec) Build(data domain.Dataset, settings domain.Settings, images ImageReader, password string) ([]byte, error) {
	log := c.log().With("domain", "archive", "action", "build")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	meta := Metadata{
		App:           AppID,
		CreatedAt:     c.now(),
		AppVersion:    c.AppVersion,
		SchemaVersion: SchemaVersion,
		Encrypted:     password != "",
	}
	if err := writeJSONEntry(zw, metadataEntry, meta); err != nil {
		return nil, err
	}
	version := VersionInfo{BackupFormatVersion: FormatVersion, MinAppVersion: MinAppVersion}
	if err := writeJSONEntry(zw, versionEntry, version); err != nil {
		return nil, err
	}

	if err := writeSegment(zw, databaseEntry, data, password); err != nil {
		return nil, fmt.Errorf("database segment: %w", err)
	}
	if err := writeSegment(zw, configEntry, settings, password); err != nil {
		return nil, fmt.Errorf("config segment: %w", err)
	}

	if images != nil {
		seen := make(map[string]struct{})
		for _, p := range data.Products {
			if p.Image == "" {
				continue
			}
			if _, dup := seen[p.Image]; dup {
				continue
			}
			seen[p.Image] = struct{}{}
			blob, err := images.ReadImage(p.Image)
			if err != nil {
				log.Warn("skipping product image", "image", p.Image, "error", err)
				continue
			}
			if err := writeStoredEntry(zw, imagesPrefix+p.Image, blob); err != nil {
				return nil, fmt.Errorf("image entry %s: %w", p.Image, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes an archive. Checks run cheapest-first: structure, then
// format version, then the password gate, and only then decryption. A
// settings decrypt or parse failure degrades to defaults; a database failure
// is fatal. Images are restored through sink one by one, each best-effort.
func (c *Codec) Parse(raw []byte, password string, sink ImageWriter) (*Restored, error) {
	log := c.log().With("domain", "archive", "action", "parse")

	zr, entries, err := openArchive(raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{metadataEntry, versionEntry, databaseEntry} {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidArchive, name)
		}
	}

	res := &Restored{}
	if err := readJSONEntry(entries[metadataEntry], &res.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidArchive, err)
	}
	if err := readJSONEntry(entries[versionEntry], &res.Version); err != nil {
		return nil, fmt.Errorf("%w: version info: %v", ErrInvalidArchive, err)
	}
	if res.Version.BackupFormatVersion > FormatVersion {
		return nil, fmt.Errorf("%w: archive version %d, supported up to %d",
			ErrUnsupportedVersion, res.Version.BackupFormatVersion, FormatVersion)
	}
	if res.Metadata.Encrypted && password == "" {
		return nil, ErrPasswordRequired
	}

	dbText, err := readEntry(entries[databaseEntry])
	if err != nil {
		return nil, fmt.Errorf("%w: database entry: %v", ErrInvalidArchive, err)
	}
	// Route on the actual payload shape, not the metadata flag, so a
	// mismatched flag fails safely instead of misparsing.
	if crypto.IsEncrypted(dbText) {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		dbText, err = crypto.Decrypt(dbText, password)
		if err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(dbText), &res.Data); err != nil {
		return nil, fmt.Errorf("%w: database records: %v", ErrInvalidArchive, err)
	}

	res.Settings = c.parseSettings(entries, password, log)

	if sink != nil {
		res.ImagesRestored, res.ImagesSkipped = restoreImages(zr, sink, log)
	}
	return res, nil
}

// parseSettings reads the optional config segment. Every failure mode here
// is non-fatal: transactional records are the backup's value, settings are
// cosmetic.
func (c *Codec) parseSettings(entries map[string]*zip.File, password string, log *slog.Logger) domain.Settings {
	f, ok := entries[configEntry]
	if !ok {
		return domain.DefaultSettings()
	}
	text, err := readEntry(f)
	if err != nil {
		log.Warn("config entry unreadable, using defaults", "error", err)
		return domain.DefaultSettings()
	}
	if crypto.IsEncrypted(text) {
		text, err = crypto.Decrypt(text, password)
		if err != nil {
			log.Warn("config segment decryption failed, using defaults", "error", err)
			return domain.DefaultSettings()
		}
	}
	settings := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(text), &settings); err != nil {
		log.Warn("config segment unparsable, using defaults", "error", err)
		return domain.DefaultSettings()
	}
	return settings
}

// Validate performs a structural-only check without touching any encrypted
// payload. It accepts both the current and legacy application identifiers.
func (c *Codec) Validate(raw []byte) ValidationResult {
	_, entries, err := openArchive(raw)
	if err != nil {
		return ValidationResult{Err: err}
	}
	for _, name := range []string{metadataEntry, versionEntry, databaseEntry} {
		if _, ok := entries[name]; !ok {
			return ValidationResult{Err: fmt.Errorf("%w: missing %s", ErrInvalidArchive, name)}
		}
	}
	var meta Metadata
	if err := readJSONEntry(entries[metadataEntry], &meta); err != nil {
		return ValidationResult{Err: fmt.Errorf("%w: metadata: %v", ErrInvalidArchive, err)}
	}
	if meta.App != AppID && meta.App != LegacyAppID {
		return ValidationResult{Err: fmt.Errorf("%w: unrecognized application %q", ErrInvalidArchive, meta.App)}
	}
	return ValidationResult{Valid: true, Metadata: &meta}
}

// Inspect returns a read-only preview. Encrypted archives inspected without
// a password yield zeroed counts plus metadata so a UI can show a
// "protected" state; a wrong password yields crypto.ErrAuthentication so
// the UI can distinguish "no password yet" from "wrong password".
func (c *Codec) Inspect(raw []byte, password string) (*Summary, error) {
	_, entries, err := openArchive(raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{metadataEntry, versionEntry, databaseEntry} {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidArchive, name)
		}
	}

	sum := &Summary{SizeBytes: int64(len(raw))}
	if err := readJSONEntry(entries[metadataEntry], &sum.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidArchive, err)
	}
	sum.Protected = sum.Metadata.Encrypted
	for name := range entries {
		if strings.HasPrefix(name, imagesPrefix) {
			sum.ImageCount++
		}
	}

	dbText, err := readEntry(entries[databaseEntry])
	if err != nil {
		return nil, fmt.Errorf("%w: database entry: %v", ErrInvalidArchive, err)
	}
	if crypto.IsEncrypted(dbText) {
		if password == "" {
			return sum, nil
		}
		dbText, err = crypto.Decrypt(dbText, password)
		if err != nil {
			return nil, err
		}
	}
	var data domain.Dataset
	if err := json.Unmarshal([]byte(dbText), &data); err != nil {
		return nil, fmt.Errorf("%w: database records: %v", ErrInvalidArchive, err)
	}
	sum.Counts = data.Counts()
	return sum, nil
}

// restoreImages writes every images/products/ entry through sink. Each image
// is independent: a corrupt or unwritable one is logged and skipped.
func restoreImages(zr *zip.Reader, sink ImageWriter, log *slog.Logger) (restored, skipped int) {
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, imagesPrefix) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := path.Base(f.Name)
		blob, err := readEntryBytes(f)
		if err != nil {
			log.Warn("skipping corrupt image entry", "image", name, "error", err)
			skipped++
			continue
		}
		if err := sink.WriteImage(name, blob); err != nil {
			log.Warn("failed to restore image", "image", name, "error", err)
			skipped++
			continue
		}
		restored++
	}
	return restored, skipped
}

// writeSegment serializes v to JSON and writes it as a (possibly encrypted)
// text entry.
func writeSegment(zw *zip.Writer, name string, v any, password string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	text := string(raw)
	if password != "" {
		text, err = crypto.Encrypt(text, password)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

// writeStoredEntry writes blob without compression. Product images are
// already-compressed formats; deflating them again buys nothing.
func writeStoredEntry(zw *zip.Writer, name string, blob []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = w.Write(blob)
	return err
}

func openArchive(raw []byte) (*zip.Reader, map[string]*zip.File, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	return zr, entries, nil
}

func readEntryBytes(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readEntry(f *zip.File) (string, error) {
	b, err := readEntryBytes(f)
	return string(b), err
}

func readJSONEntry(f *zip.File, v any) error {
	b, err := readEntryBytes(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
