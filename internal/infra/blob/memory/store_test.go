package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"metalcore/internal/blob/core"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	if store.Driver() != core.DriverMemory {
		t.Fatalf("driver: %s", store.Driver())
	}
	info, err := store.Put(ctx, "certs/aq-000001.pdf", bytes.NewReader([]byte("certificate")), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 11 {
		t.Fatalf("size: %d", info.Size)
	}
	if _, err := store.Put(ctx, "certs/aq-000001.pdf", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatal("expected duplicate key failure")
	}

	_, rc, err := store.Get(ctx, "certs/aq-000001.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "certificate" {
		t.Fatalf("body: %q", body)
	}

	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatal("expected head failure for missing key")
	}
	list, err := store.List(ctx, "certs/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	existed, err := store.Delete(ctx, "certs/aq-000001.pdf")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	if _, err := store.PresignURL(ctx, "any", core.SignedURLOptions{}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
