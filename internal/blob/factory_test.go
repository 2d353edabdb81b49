package blob

import (
	"bytes"
	"context"
	"testing"
)

func TestOpenSelectsMemoryDriver(t *testing.T) {
	t.Setenv("METALCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver: %s", store.Driver())
	}
}

func TestOpenSelectsFilesystemDriver(t *testing.T) {
	t.Setenv("METALCORE_BLOB_DRIVER", "fs")
	t.Setenv("METALCORE_BLOB_FS_ROOT", t.TempDir())
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver: %s", store.Driver())
	}
	if _, err := store.Put(context.Background(), "probe.txt", bytes.NewReader([]byte("ok")), PutOptions{}); err != nil {
		t.Fatalf("put through interface: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("METALCORE_BLOB_DRIVER", "ftp")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestOpenS3DriverRequiresBucket(t *testing.T) {
	t.Setenv("METALCORE_BLOB_DRIVER", "s3")
	t.Setenv("METALCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}
