package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"metalcore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestPutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)

	info, err := store.Put(ctx, "lots/lmp-000001/photo.jpg", bytes.NewReader([]byte("imagedata")), core.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"lot": "LMP-000001"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "lots/lmp-000001/photo.jpg" || info.Size != 9 || info.ETag == "" {
		t.Fatalf("put info: %+v", info)
	}

	// Create-only: a second put on the same key fails.
	if _, err := store.Put(ctx, "lots/lmp-000001/photo.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatal("expected duplicate key failure")
	}

	head, err := store.Head(ctx, "lots/lmp-000001/photo.jpg")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, rc, err := store.Get(ctx, "lots/lmp-000001/photo.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "imagedata" || got.ETag != head.ETag {
		t.Fatalf("get mismatch: %q etag %s vs %s", body, got.ETag, head.ETag)
	}
	if got.Metadata["lot"] != "LMP-000001" {
		t.Fatalf("metadata: %+v", got.Metadata)
	}

	list, err := store.List(ctx, "lots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "lots/lmp-000001/photo.jpg" {
		t.Fatalf("list: %+v", list)
	}

	existed, err := store.Delete(ctx, "lots/lmp-000001/photo.jpg")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	existed, err = store.Delete(ctx, "lots/lmp-000001/photo.jpg")
	if err != nil || existed {
		t.Fatalf("second delete: %v existed=%v", err, existed)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)

	for _, key := range []string{"", "  ", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestSidecarSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.Put(ctx, "docs/laudo.pdf", bytes.NewReader([]byte("pdf")), core.PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "docs", "laudo.pdf.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	head, err := reopened.Head(ctx, "docs/laudo.pdf")
	if err != nil {
		t.Fatalf("head after reopen: %v", err)
	}
	if head.ContentType != "application/pdf" || head.Size != 3 {
		t.Fatalf("head: %+v", head)
	}
}

func TestPresignOnlyGet(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	u, err := store.PresignURL(ctx, "k", core.SignedURLOptions{})
	if err != nil || u == "" {
		t.Fatalf("presign: %q %v", u, err)
	}
}
