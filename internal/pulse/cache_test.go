package pulse

import (
	"testing"
	"time"
)

func TestCacheHitAndExpiry(t *testing.T) {
	cache := NewCache(30 * time.Millisecond)

	cache.Set("latest", Snapshot{News: NewsSlice{GeneratedAt: fixedNow}})
	got, ok := cache.Get("latest")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if !got.News.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("cached snapshot mutated: %+v", got.News)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get("latest"); ok {
		t.Fatalf("expected expiry after ttl")
	}
}

func TestCacheMiss(t *testing.T) {
	cache := NewCache(time.Minute)
	if _, ok := cache.Get("latest"); ok {
		t.Fatalf("expected miss on empty cache")
	}
}
