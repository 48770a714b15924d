package hashcache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"corpora/internal/hashcache"
)

func newCache(t *testing.T) *hashcache.Cache {
	t.Helper()
	addr := os.Getenv("CORPORA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CORPORA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return hashcache.New(client, "corpora-test:"+t.Name()+":", time.Minute)
}

func TestSetThenGet(t *testing.T) {
	cache := newCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "out", "a\x1fb"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "out", "a\x1fb", "hash"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "out", "a\x1fb")
	if err != nil || !ok || got != "hash" {
		t.Fatalf("Get = %q ok=%v err=%v", got, ok, err)
	}
}

func TestOpenDisabledReturnsNil(t *testing.T) {
	cache, err := hashcache.Open(context.Background(), nil)
	if err != nil || cache != nil {
		t.Fatalf("expected nil cache, got %v err=%v", cache, err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close on nil cache: %v", err)
	}
}

func TestGetManyKeepsCompositeKeysDistinct(t *testing.T) {
	cache := newCache(t)
	ctx := context.Background()

	if err := cache.SetMany(ctx, "out", map[string]string{
		"a,b":    "joined",
		"a\x1fb": "composite",
	}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	got, err := cache.GetMany(ctx, "out", []string{"a,b", "a\x1fb", "missing"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 || got["a,b"] != "joined" || got["a\x1fb"] != "composite" {
		t.Fatalf("unexpected hashes %v", got)
	}
}
