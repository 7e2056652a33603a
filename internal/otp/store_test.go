package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(WithMemoryClock(clock.Now))
	ctx := context.Background()

	if err := m.Put(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Put(ctx, "b", []byte("2"), time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := m.Get(ctx, "a")
	if err != nil || string(got) != "1" {
		t.Fatalf("get: %q %v", got, err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected expired key to be missing, got %v", err)
	}
	if err := m.Put(ctx, "c", []byte("3"), time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	clock.Advance(time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected sweep to drop one entry, dropped %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("expected only b to remain, have %d", m.Len())
	}
	if err := m.Put(ctx, "d", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestMemoryRunStopsOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedis(rdb, "transconecta:")
	ctx := context.Background()

	if err := store.Put(ctx, "otp:code:a@b.co", []byte(`{"code":"123456"}`), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("transconecta:otp:code:a@b.co") {
		t.Fatal("expected prefixed key in redis")
	}
	got, err := store.Get(ctx, "otp:code:a@b.co")
	if err != nil || string(got) != `{"code":"123456"}` {
		t.Fatalf("get: %q %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "otp:code:a@b.co"); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected missing after ttl, got %v", err)
	}

	_ = store.Put(ctx, "k", []byte("v"), time.Minute)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected missing after delete, got %v", err)
	}
}
