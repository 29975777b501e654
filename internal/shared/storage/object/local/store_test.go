package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cvscanner-backend/internal/shared/storage/object"
)

func TestSaveNamespacesByOwnerAndSniffsMime(t *testing.T) {
	store := New(t.TempDir())
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	key, size, mimeType, err := store.Save(context.Background(), "1023456789", "scan.png", bytes.NewReader(png))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(key, "uploads/") || strings.Contains(key, "1023456789") {
		t.Fatalf("unexpected key %q", key)
	}
	if !strings.HasSuffix(key, "_scan.png") {
		t.Fatalf("expected sanitized file name suffix, got %q", key)
	}
	if size != int64(len(png)) {
		t.Fatalf("expected size %d, got %d", len(png), size)
	}
	if mimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", mimeType)
	}

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, png) {
		t.Fatalf("round trip mismatch")
	}
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("disk gone")
}

func TestSaveWithKeyLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	if _, err := store.SaveWithKey(context.Background(), "documents/r1/cv.docx", "application/zip", &failingReader{}); err == nil {
		t.Fatalf("expected write failure")
	}

	if _, err := os.Stat(filepath.Join(dir, "documents", "r1", "cv.docx")); !os.IsNotExist(err) {
		t.Fatalf("expected no target file, stat err=%v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "documents", "r1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestOpenRejectsTraversalAndReportsMissing(t *testing.T) {
	store := New(t.TempDir())

	if _, err := store.Open(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, err := store.Open(context.Background(), "documents/missing.docx"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
