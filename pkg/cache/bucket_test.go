package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type shipment struct {
	Number string `json:"number"`
	Status string `json:"status"`
}

func TestBucket_SaveAndLoad(t *testing.T) {
	client, mr := setupTestRedis(t)
	bucket := NewBucket[shipment](NewManager(client), "result")
	ctx := context.Background()

	before := time.Now()
	if err := bucket.Save(ctx, "PGS1", &shipment{Number: "PGS1", Status: "DELIVERED"}, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("tracking:result:PGS1") {
		t.Fatal("value not written under the bucket kind")
	}

	got, cachedAt, err := bucket.Load(ctx, "PGS1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Number != "PGS1" || got.Status != "DELIVERED" {
		t.Errorf("Load() = %+v, want PGS1 DELIVERED", got)
	}
	if cachedAt.Before(before.Add(-time.Second)) {
		t.Errorf("cachedAt = %v, want >= %v", cachedAt, before)
	}
}

func TestBucket_Load_Errors(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	bucket := NewBucket[shipment](manager, "result")
	ctx := context.Background()

	if _, _, err := bucket.Load(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Load(missing) error = %v, want ErrCacheMiss", err)
	}

	// valid entry whose payload is not a shipment
	if err := manager.Set(ctx, CacheKey{Kind: "result", ID: "odd"}, NewEntry([]byte(`[1,2]`), time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, _, err := bucket.Load(ctx, "odd"); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Load(odd) error = %v, want ErrInvalidEntry", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, _, err := bucket.Load(ctx, "odd"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Load(expired) error = %v, want ErrCacheMiss", err)
	}
}

func TestBucket_ClearOnlyOwnKind(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	results := NewBucket[shipment](manager, "result")
	others := NewBucket[shipment](manager, "other")
	ctx := context.Background()

	for _, id := range []string{"A1", "A2"} {
		if err := results.Save(ctx, id, &shipment{Number: id}, time.Minute); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := others.Save(ctx, "B1", &shipment{Number: "B1"}, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	removed, err := results.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if !mr.Exists("tracking:other:B1") {
		t.Error("Clear removed a key of another bucket")
	}
	if results.Kind() != "result" {
		t.Errorf("Kind() = %q, want result", results.Kind())
	}
}
