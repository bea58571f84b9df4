package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLockerSingleFlight(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, err := l.Acquire(ctx, "sync:exchanger:1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if token == "" {
		t.Fatal("Acquire() returned empty token")
	}

	if _, err := l.Acquire(ctx, "sync:exchanger:1", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire() error = %v, want ErrNotAcquired", err)
	}

	// Another key is independent
	if _, err := l.Acquire(ctx, "sync:exchanger:2", time.Minute); err != nil {
		t.Fatalf("Acquire() other key error: %v", err)
	}

	if err := l.Release(ctx, "sync:exchanger:1", token); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := l.Acquire(ctx, "sync:exchanger:1", time.Minute); err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "k", 10*time.Millisecond); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := l.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Acquire() after expiry error: %v", err)
	}
}

func TestMemoryLockerStaleTokenCannotRelease(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// The lock expired and was taken over by a new holder
	if _, err := l.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("takeover Acquire() error: %v", err)
	}

	if err := l.Release(ctx, "k", stale); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	// The stale release must not have freed the new holder's lock
	if _, err := l.Acquire(ctx, "k", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("Acquire() error = %v, want ErrNotAcquired", err)
	}
}
