package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flexhaus/bems/core/store"
)

func TestGetSetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("expected v got %q", v)
	}
}

func TestGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}
	now = now.Add(61 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expiry got %v", err)
	}
}

func TestSetIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	ok, err := s.SetIfAbsent(ctx, "k", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetIfAbsent(ctx, "k", []byte("b"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second claim should lose: ok=%v err=%v", ok, err)
	}
	v, _ := s.Get(ctx, "k")
	if string(v) != "a" {
		t.Fatalf("loser overwrote value: %q", v)
	}
	now = now.Add(2 * time.Minute)
	ok, _ = s.SetIfAbsent(ctx, "k", []byte("c"), time.Minute)
	if !ok {
		t.Fatalf("claim after expiry should win")
	}
}

func TestSetIfAbsentConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	wins := make(chan struct{}, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetIfAbsent(ctx, "claim", []byte("x"), time.Minute)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			if ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestSweep(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), time.Second)
	_ = s.Set(ctx, "b", []byte("2"), 0)
	now = now.Add(time.Minute)
	s.Sweep()
	if len(s.data) != 1 {
		t.Fatalf("expected 1 entry after sweep, got %d", len(s.data))
	}
	if _, err := s.Get(ctx, "b"); err != nil {
		t.Fatalf("unexpired entry lost: %v", err)
	}
}
