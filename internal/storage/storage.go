// Package storage abstracts the blob store holding raw uploaded files.
//
// The metadata layer never touches file bytes directly: it reserves an
// upload target, later downloads the stored bytes for ingestion, and
// deletes the blob on purge. The filesystem implementation keeps blobs
// under a root directory, keyed as <userID>/<documentID>/<fileName>.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a storage locator resolves to no blob.
var ErrNotFound = errors.New("storage: blob not found")

// Target is a reserved location for an upload. DocumentID doubles as the
// identifier for the metadata row created alongside the reservation.
type Target struct {
	DocumentID string
	Path       string
}

// Store is the blob storage collaborator.
type Store interface {
	// CreateUploadTarget reserves a location for a new document's bytes.
	CreateUploadTarget(userID, fileName string) (Target, error)
	// Upload streams blob bytes to the given locator, returning the size.
	Upload(ctx context.Context, path string, r io.Reader) (int64, error)
	// Download returns the full blob for a locator.
	Download(ctx context.Context, path string) ([]byte, error)
	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, path string) error
}

// FS is a filesystem-backed Store rooted at a directory.
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns a filesystem store.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FS{root: root}, nil
}

// CreateUploadTarget allocates a fresh document id and the relative path
// the blob will live under. Nothing is written until Upload.
func (f *FS) CreateUploadTarget(userID, fileName string) (Target, error) {
	if userID == "" {
		return Target{}, errors.New("storage: user id is required")
	}
	name := sanitizeFileName(fileName)
	if name == "" {
		return Target{}, errors.New("storage: file name is required")
	}
	docID := uuid.NewString()
	return Target{
		DocumentID: docID,
		Path:       filepath.ToSlash(filepath.Join(userID, docID, name)),
	}, nil
}

// Upload writes the blob to a temporary file first and renames it into
// place, so a crashed upload never leaves a half-written blob at the
// final locator.
func (f *FS) Upload(ctx context.Context, path string, r io.Reader) (int64, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return 0, fmt.Errorf("storage: create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("storage: write blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return 0, fmt.Errorf("storage: finalize blob: %w", err)
	}
	return n, nil
}

// Download reads the whole blob into memory. Ingestion parsers need random
// access, so streaming buys nothing here; upload size limits bound memory.
func (f *FS) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob and prunes the now-empty document directory.
func (f *FS) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete blob: %w", err)
	}
	// Best-effort cleanup of the per-document directory.
	_ = os.Remove(filepath.Dir(abs))
	return nil
}

// resolve maps a locator onto the root, rejecting anything that would
// escape it.
func (f *FS) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("storage: empty locator")
	}
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	rootAbs, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if target != rootAbs && !strings.HasPrefix(target, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: locator escapes root: %q", path)
	}
	return target, nil
}

// sanitizeFileName strips directory components and characters that have no
// business in a blob key, keeping the display name recognizable.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(os.PathSeparator) {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
