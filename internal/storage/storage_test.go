package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestCreateUploadTarget(t *testing.T) {
	fs := newFS(t)
	tgt, err := fs.CreateUploadTarget("u1", "notes.txt")
	if err != nil {
		t.Fatalf("CreateUploadTarget: %v", err)
	}
	if tgt.DocumentID == "" {
		t.Error("DocumentID is empty")
	}
	if !strings.HasPrefix(tgt.Path, "u1/"+tgt.DocumentID+"/") {
		t.Errorf("Path = %q; want u1/<docID>/ prefix", tgt.Path)
	}
	if !strings.HasSuffix(tgt.Path, "notes.txt") {
		t.Errorf("Path = %q; want notes.txt suffix", tgt.Path)
	}

	other, err := fs.CreateUploadTarget("u1", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if other.DocumentID == tgt.DocumentID || other.Path == tgt.Path {
		t.Error("targets for identical inputs must not collide")
	}
}

func TestCreateUploadTarget_Validation(t *testing.T) {
	fs := newFS(t)
	if _, err := fs.CreateUploadTarget("", "a.txt"); err == nil {
		t.Error("missing user id accepted")
	}
	if _, err := fs.CreateUploadTarget("u1", ""); err == nil {
		t.Error("missing file name accepted")
	}
	if _, err := fs.CreateUploadTarget("u1", "  "); err == nil {
		t.Error("blank file name accepted")
	}
}

func TestCreateUploadTarget_SanitizesFileName(t *testing.T) {
	fs := newFS(t)
	tgt, err := fs.CreateUploadTarget("u1", "../../../etc/passwd")
	if err != nil {
		t.Fatalf("CreateUploadTarget: %v", err)
	}
	if strings.Contains(tgt.Path, "..") {
		t.Errorf("Path %q contains traversal", tgt.Path)
	}
}

func TestUploadDownloadDelete(t *testing.T) {
	fs := newFS(t)
	ctx := context.Background()
	tgt, err := fs.CreateUploadTarget("u1", "a.txt")
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("The capital of France is Paris.")
	n, err := fs.Upload(ctx, tgt.Path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("Upload size = %d; want %d", n, len(payload))
	}

	got, err := fs.Download(ctx, tgt.Path)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Download = %q; want %q", got, payload)
	}

	if err := fs.Delete(ctx, tgt.Path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Download(ctx, tgt.Path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download after delete = %v; want ErrNotFound", err)
	}
	// Deleting again is a no-op, not an error.
	if err := fs.Delete(ctx, tgt.Path); err != nil {
		t.Errorf("second Delete = %v; want nil", err)
	}
}

func TestUpload_LeavesNoTempFileOnSuccess(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	tgt, err := fs.CreateUploadTarget("u1", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Upload(context.Background(), tgt.Path, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "u1", tgt.DocumentID))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("blob dir has %d entries; want 1", len(entries))
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	fs := newFS(t)
	ctx := context.Background()
	for _, p := range []string{"../outside", "u1/../../outside", ""} {
		if _, err := fs.Download(ctx, p); err == nil {
			t.Errorf("Download(%q) accepted a locator outside the root", p)
		}
	}
}

func TestNewFS_RequiresRoot(t *testing.T) {
	if _, err := NewFS(""); err == nil {
		t.Fatal("NewFS(\"\") should fail")
	}
}
