// Package filesystem provides the product image store backed by the local
// filesystem. Images are plain blob files named by their original filename.
package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ceroware/ceropos/internal/backup"
	"github.com/ceroware/ceropos/internal/domain"
)

// Ensure ImageStore implements the orchestrator's port.
var _ backup.ImageStore = (*ImageStore)(nil)

// ImageStore stores product images under a single root directory.
type ImageStore struct {
	root string
}

// New returns an image store rooted at dir, creating it if needed.
func New(root string) (*ImageStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{root: root}, nil
}

// ReadImage returns the bytes of the named image, or
// domain.ErrImageNotFound when no such file exists.
func (s *ImageStore) ReadImage(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrImageNotFound
		}
		return nil, err
	}
	return b, nil
}

// WriteImage stores data under name, replacing any existing image. Restores
// overwrite freely: the archive is the source of truth.
func (s *ImageStore) WriteImage(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.root, name), data, 0o600)
}

// ListImages returns the filenames currently present.
func (s *ImageStore) ListImages() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// validateName enforces that name is a bare filename. Archive entries and
// database records both carry user-influenced filenames; rejecting
// separators and dot-dot here closes the traversal path for every caller.
func validateName(name string) error {
	if name == "" ||
		strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") ||
		filepath.Base(name) != name {
		return domain.ErrInvalidImageName
	}
	return nil
}
