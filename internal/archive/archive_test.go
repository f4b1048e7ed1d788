package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceroware/ceropos/internal/crypto"
	"github.com/ceroware/ceropos/internal/domain"
)

// mapImages is an in-memory ImageReader/ImageWriter for tests.
type mapImages struct {
	files   map[string][]byte
	failOn  string
	written map[string][]byte
}

func newMapImages(files map[string][]byte) *mapImages {
	return &mapImages{files: files, written: make(map[string][]byte)}
}

func (m *mapImages) ReadImage(name string) ([]byte, error) {
	b, ok := m.files[name]
	if !ok {
		return nil, domain.ErrImageNotFound
	}
	return b, nil
}

func (m *mapImages) WriteImage(name string, data []byte) error {
	if name == m.failOn {
		return errors.New("disk full")
	}
	m.written[name] = data
	return nil
}

func testCodec() *Codec {
	return &Codec{
		AppVersion: "1.2.0",
		Now:        func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	}
}

func testDataset() domain.Dataset {
	created := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	return domain.Dataset{
		Products: []domain.Product{
			{ID: "p1", Name: "Coffee", Price: 12.5, Stock: 40, Image: "coffee.png", CreatedAt: created, UpdatedAt: created},
			{ID: "p2", Name: "Tea", Price: 8, Stock: 15, CreatedAt: created, UpdatedAt: created},
		},
		Categories: []domain.Category{{ID: "c1", Name: "Drinks"}},
		Sales: []domain.Sale{{
			ID:            "s1",
			Items:         []domain.SaleItem{{ProductID: "p1", ProductName: "Coffee", Quantity: 2, UnitPrice: 12.5, Subtotal: 25}},
			Total:         25,
			PaymentMethod: "cash",
			CreatedAt:     created,
		}},
		Suppliers: []domain.Supplier{{ID: "v1", Name: "Beans Ltda"}},
		Clients:   []domain.Client{{ID: "k1", Name: "Maria"}},
	}
}

func testSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.StoreName = "Cafe da Praca"
	s.TaxRate = 0.07
	return s
}

// rewriteEntry copies the archive, replacing (or, with nil content, dropping)
// the named entry.
func rewriteEntry(t *testing.T, raw []byte, name string, content []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	replaced := false
	for _, f := range zr.File {
		if f.Name == name {
			replaced = true
			if content == nil {
				continue
			}
			w, err := zw.Create(name)
			require.NoError(t, err)
			_, err = w.Write(content)
			require.NoError(t, err)
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = io.Copy(w, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
	if !replaced && content != nil {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// corruptEntryCRC rewrites the named entry raw with a wrong checksum so
// reading it fails.
func corruptEntryCRC(t *testing.T, raw []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		if f.Name == name {
			w, err := zw.CreateRaw(&zip.FileHeader{
				Name:               name,
				Method:             zip.Store,
				CRC32:              0xdeadbeef,
				CompressedSize64:   uint64(len(data)),
				UncompressedSize64: uint64(len(data)),
			})
			require.NoError(t, err)
			_, err = w.Write(data)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestBuildParseRoundTripPlain(t *testing.T) {
	c := testCodec()
	images := newMapImages(map[string][]byte{"coffee.png": []byte("PNGDATA")})
	raw, err := c.Build(testDataset(), testSettings(), images, "")
	require.NoError(t, err)

	sink := newMapImages(nil)
	res, err := c.Parse(raw, "", sink)
	require.NoError(t, err)
	assert.Equal(t, testDataset(), res.Data)
	assert.Equal(t, testSettings(), res.Settings)
	assert.False(t, res.Metadata.Encrypted)
	assert.Equal(t, AppID, res.Metadata.App)
	assert.Equal(t, FormatVersion, res.Version.BackupFormatVersion)
	assert.Equal(t, 1, res.ImagesRestored)
	assert.Equal(t, []byte("PNGDATA"), sink.written["coffee.png"])
}

func TestBuildParseRoundTripEncrypted(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "hunter2")
	require.NoError(t, err)

	res, err := c.Parse(raw, "hunter2", nil)
	require.NoError(t, err)
	assert.Equal(t, testDataset(), res.Data)
	assert.Equal(t, testSettings(), res.Settings)
	assert.True(t, res.Metadata.Encrypted)
}

func TestParseEncryptedWrongPassword(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "correct")
	require.NoError(t, err)

	_, err = c.Parse(raw, "wrong", nil)
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestParseEncryptedWithoutPassword(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "x")
	require.NoError(t, err)

	_, err = c.Parse(raw, "", nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestParseEncryptedPayloadWithLyingMetadata(t *testing.T) {
	// metadata says plaintext but the database entry is an envelope; the
	// parser must route on payload shape and demand a password.
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "pw")
	require.NoError(t, err)

	meta := Metadata{App: AppID, CreatedAt: time.Now().UTC(), AppVersion: "1.2.0", SchemaVersion: SchemaVersion, Encrypted: false}
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	lying := rewriteEntry(t, raw, "metadata.json", metaJSON)

	_, err = c.Parse(lying, "", nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestParseUnsupportedVersion(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "")
	require.NoError(t, err)

	future, err := json.Marshal(VersionInfo{BackupFormatVersion: FormatVersion + 1, MinAppVersion: "9.0.0"})
	require.NoError(t, err)
	raw = rewriteEntry(t, raw, "version.json", future)

	_, err = c.Parse(raw, "", nil)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseMissingDatabaseEntry(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "pw")
	require.NoError(t, err)
	raw = rewriteEntry(t, raw, "database/data.json", nil)

	_, err = c.Parse(raw, "pw", nil)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseNotAnArchive(t *testing.T) {
	c := testCodec()
	_, err := c.Parse([]byte("this is not a zip file"), "", nil)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseConfigFailureIsNonFatal(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "pw")
	require.NoError(t, err)

	// Re-encrypt the settings under a different password: the database
	// still opens, the config segment falls back to defaults.
	settingsJSON, err := json.Marshal(testSettings())
	require.NoError(t, err)
	otherEnv, err := crypto.Encrypt(string(settingsJSON), "other-password")
	require.NoError(t, err)
	raw = rewriteEntry(t, raw, "config/settings.json", []byte(otherEnv))

	res, err := c.Parse(raw, "pw", nil)
	require.NoError(t, err)
	assert.Equal(t, testDataset(), res.Data)
	assert.Equal(t, domain.DefaultSettings(), res.Settings)
}

func TestParseMissingConfigUsesDefaults(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "")
	require.NoError(t, err)
	raw = rewriteEntry(t, raw, "config/settings.json", nil)

	res, err := c.Parse(raw, "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), res.Settings)
}

func TestBuildSkipsMissingImages(t *testing.T) {
	c := testCodec()
	data := testDataset()
	data.Products[1].Image = "ghost.png" // not present in the store
	images := newMapImages(map[string][]byte{"coffee.png": []byte("PNGDATA")})

	raw, err := c.Build(data, testSettings(), images, "")
	require.NoError(t, err)

	sum, err := c.Inspect(raw, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ImageCount)
}

func TestRestorePartialImageFailure(t *testing.T) {
	c := testCodec()
	data := testDataset()
	data.Products = append(data.Products, domain.Product{ID: "p3", Name: "Mate", Image: "mate.png"})
	data.Products[1].Image = "tea.png"
	images := newMapImages(map[string][]byte{
		"coffee.png": []byte("AAA"),
		"tea.png":    []byte("BBB"),
		"mate.png":   []byte("CCC"),
	})
	raw, err := c.Build(data, testSettings(), images, "")
	require.NoError(t, err)

	t.Run("corrupt entry is skipped", func(t *testing.T) {
		corrupted := corruptEntryCRC(t, raw, "images/products/tea.png")
		sink := newMapImages(nil)
		res, err := c.Parse(corrupted, "", sink)
		require.NoError(t, err)
		assert.Equal(t, 2, res.ImagesRestored)
		assert.Equal(t, 1, res.ImagesSkipped)
		assert.Equal(t, data, res.Data)
		assert.Contains(t, sink.written, "coffee.png")
		assert.Contains(t, sink.written, "mate.png")
	})

	t.Run("sink write failure is skipped", func(t *testing.T) {
		sink := newMapImages(nil)
		sink.failOn = "mate.png"
		res, err := c.Parse(raw, "", sink)
		require.NoError(t, err)
		assert.Equal(t, 2, res.ImagesRestored)
		assert.Equal(t, 1, res.ImagesSkipped)
	})
}

func TestValidate(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "pw")
	require.NoError(t, err)

	t.Run("valid archive", func(t *testing.T) {
		res := c.Validate(raw)
		assert.True(t, res.Valid)
		require.NotNil(t, res.Metadata)
		assert.Equal(t, AppID, res.Metadata.App)
	})

	t.Run("legacy app identifier accepted", func(t *testing.T) {
		meta := Metadata{App: LegacyAppID, CreatedAt: time.Now().UTC(), SchemaVersion: 1, Encrypted: true}
		metaJSON, err := json.Marshal(meta)
		require.NoError(t, err)
		legacy := rewriteEntry(t, raw, "metadata.json", metaJSON)
		res := c.Validate(legacy)
		assert.True(t, res.Valid)
	})

	t.Run("foreign app identifier rejected", func(t *testing.T) {
		meta := Metadata{App: "someoneelse", SchemaVersion: 1}
		metaJSON, err := json.Marshal(meta)
		require.NoError(t, err)
		foreign := rewriteEntry(t, raw, "metadata.json", metaJSON)
		res := c.Validate(foreign)
		assert.False(t, res.Valid)
		assert.ErrorIs(t, res.Err, ErrInvalidArchive)
	})

	t.Run("garbage bytes rejected", func(t *testing.T) {
		res := c.Validate([]byte("junk"))
		assert.False(t, res.Valid)
		assert.ErrorIs(t, res.Err, ErrInvalidArchive)
	})

	t.Run("missing required entry rejected", func(t *testing.T) {
		broken := rewriteEntry(t, raw, "database/data.json", nil)
		res := c.Validate(broken)
		assert.False(t, res.Valid)
		assert.ErrorIs(t, res.Err, ErrInvalidArchive)
	})
}

func TestInspect(t *testing.T) {
	c := testCodec()
	images := newMapImages(map[string][]byte{"coffee.png": []byte("PNGDATA")})
	raw, err := c.Build(testDataset(), testSettings(), images, "hunter2")
	require.NoError(t, err)

	t.Run("no password shows protected state", func(t *testing.T) {
		sum, err := c.Inspect(raw, "")
		require.NoError(t, err)
		assert.True(t, sum.Protected)
		assert.Equal(t, domain.Counts{}, sum.Counts)
		assert.Equal(t, 1, sum.ImageCount)
		assert.Equal(t, int64(len(raw)), sum.SizeBytes)
	})

	t.Run("correct password yields counts", func(t *testing.T) {
		sum, err := c.Inspect(raw, "hunter2")
		require.NoError(t, err)
		assert.Equal(t, domain.Counts{Products: 2, Categories: 1, Sales: 1, Suppliers: 1, Clients: 1}, sum.Counts)
	})

	t.Run("wrong password is an authentication failure", func(t *testing.T) {
		_, err := c.Inspect(raw, "nope")
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})
}

func TestBuildWritesEncryptedSegments(t *testing.T) {
	c := testCodec()
	raw, err := c.Build(testDataset(), testSettings(), nil, "pw")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	byName := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		byName[f.Name] = string(b)
	}

	assert.True(t, crypto.IsEncrypted(byName["database/data.json"]))
	assert.True(t, crypto.IsEncrypted(byName["config/settings.json"]))
	assert.False(t, crypto.IsEncrypted(byName["metadata.json"]))
	assert.False(t, crypto.IsEncrypted(byName["version.json"]))
}
