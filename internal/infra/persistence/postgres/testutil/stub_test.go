package testutil

import (
	"context"
	"testing"
)

func TestStubUpsertsAndServesBuckets(t *testing.T) {
	db, conn := NewStubDB()
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, "lots", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, "lots", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := string(conn.Buckets["lots"]); got != `{"a":2}` {
		t.Fatalf("bucket payload = %s", got)
	}

	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	count := 0
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if bucket != "lots" || string(payload) != `{"a":2}` {
			t.Fatalf("row = %s %s", bucket, payload)
		}
		count++
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestStubFailureFlags(t *testing.T) {
	db, conn := NewStubDB()
	ctx := context.Background()

	conn.FailPing = true
	if err := db.PingContext(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailPing = false

	conn.FailExec = true
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (bucket TEXT PRIMARY KEY, payload JSONB NOT NULL)`); err == nil {
		t.Fatalf("expected exec failure")
	}
}
