package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"metalcore/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()

	if store.Driver() != core.DriverS3 {
		t.Fatalf("driver: %s", store.Driver())
	}
	info, err := store.Put(ctx, "media/reaction/rea-000001.jpg", bytes.NewReader([]byte("payload")), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "media/reaction/rea-000001.jpg" || info.Size != 7 {
		t.Fatalf("put info: %+v", info)
	}
	if _, err := store.Put(ctx, "media/reaction/rea-000001.jpg", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatal("expected duplicate key failure")
	}

	_, rc, err := store.Get(ctx, "media/reaction/rea-000001.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" {
		t.Fatalf("body: %q", body)
	}

	list, err := store.List(ctx, "media/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	existed, err := store.Delete(ctx, "media/reaction/rea-000001.jpg")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
}

func TestPresignRejectsNonGet(t *testing.T) {
	store := NewMockForTests()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("METALCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}
