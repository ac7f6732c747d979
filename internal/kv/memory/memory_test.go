package memory

import (
	"context"
	"errors"
	"testing"

	"invoicely/backend/internal/kv"
)

func TestGetSetRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := store.Get(ctx, "greeting")
	if err != nil || value != "hello" {
		t.Fatalf("get = %q, %v", value, err)
	}
}

func TestListsAreCopied(t *testing.T) {
	store := New()
	ctx := context.Background()

	values := []string{"a", "b"}
	if err := store.SetList(ctx, "letters", values); err != nil {
		t.Fatalf("set list failed: %v", err)
	}
	values[0] = "mutated"

	got, err := store.GetList(ctx, "letters")
	if err != nil {
		t.Fatalf("get list failed: %v", err)
	}
	if got[0] != "a" {
		t.Fatalf("stored list must not alias the caller's slice")
	}

	got[1] = "mutated"
	again, _ := store.GetList(ctx, "letters")
	if again[1] != "b" {
		t.Fatalf("returned list must not alias the stored slice")
	}
}

func TestRemoveClearsBothShapes(t *testing.T) {
	store := New()
	ctx := context.Background()

	_ = store.Set(ctx, "key", "scalar")
	_ = store.SetList(ctx, "key", []string{"x"})

	if err := store.Remove(ctx, "key"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := store.Get(ctx, "key"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("scalar should be gone after remove")
	}
	if values, _ := store.GetList(ctx, "key"); len(values) != 0 {
		t.Fatalf("list should be gone after remove")
	}
}
