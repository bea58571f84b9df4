package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want miss", ok, err)
	}

	if err := s.SetWithTTL(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("SetWithTTL() error: %v", err)
	}
	val, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get(k) = ok=%v err=%v, want hit", ok, err)
	}
	if !bytes.Equal(val, []byte("v")) {
		t.Errorf("value = %q, want %q", val, "v")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expired entry still served")
	}
}
