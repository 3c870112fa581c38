//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreNodenetRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nodenet.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	record := sampleRecord("net-1")
	if err := store.SaveNodenet(ctx, record); err != nil {
		t.Fatalf("save nodenet: %v", err)
	}
	record.Step = 8
	if err := store.SaveNodenet(ctx, record); err != nil {
		t.Fatalf("overwrite nodenet: %v", err)
	}

	loaded, ok, err := store.GetNodenet(ctx, "net-1")
	if err != nil {
		t.Fatalf("get nodenet: %v", err)
	}
	if !ok {
		t.Fatal("expected nodenet net-1")
	}
	if loaded.Step != 8 || len(loaded.Nodes) != 2 || loaded.Modulators["arousal"] != 0.3 {
		t.Fatalf("unexpected nodenet loaded: %+v", loaded)
	}

	list, err := store.ListNodenets(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Step != 8 || list[0].Links != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := store.DeleteNodenet(ctx, "net-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.GetNodenet(ctx, "net-1"); err != nil || ok {
		t.Fatalf("expected deleted nodenet, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nodenet.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveNodenet(ctx, sampleRecord("net-2")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	if _, ok, err := second.GetNodenet(ctx, "net-2"); err != nil || !ok {
		t.Fatalf("expected persisted nodenet, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "nodenet.db"))
	if err := store.SaveNodenet(context.Background(), sampleRecord("net-1")); err == nil {
		t.Fatal("expected save before init to fail")
	}
}
