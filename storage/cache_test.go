package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"weekplan-api/domain"
)

type stubBackend struct {
	backend
	getWeekFn func(ctx context.Context, userID, weekKey string) (domain.Days, error)
	putWeekFn func(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error)
}

func (s *stubBackend) GetWeek(ctx context.Context, userID, weekKey string) (domain.Days, error) {
	if s.getWeekFn == nil {
		return nil, errors.New("unexpected GetWeek call")
	}
	return s.getWeekFn(ctx, userID, weekKey)
}

func (s *stubBackend) PutWeek(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error) {
	if s.putWeekFn == nil {
		return nil, errors.New("unexpected PutWeek call")
	}
	return s.putWeekFn(ctx, userID, weekKey, days)
}

func newCacheUnderTest(t *testing.T, base backend, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, ttl), mr
}

func TestCacheGetWeekMissThenHit(t *testing.T) {
	ctx := context.Background()
	expected := domain.Days{0: {{ID: "a", Text: "write code"}}}

	var calls int
	cache, mr := newCacheUnderTest(t, &stubBackend{
		getWeekFn: func(ctx context.Context, userID, weekKey string) (domain.Days, error) {
			calls++
			if userID != "user-1" || weekKey != "2024-01-01" {
				t.Fatalf("unexpected lookup: %s %s", userID, weekKey)
			}
			return expected.Clone(), nil
		},
	}, time.Minute)

	for i := 0; i < 2; i++ {
		days, err := cache.GetWeek(ctx, "user-1", "2024-01-01")
		if err != nil {
			t.Fatalf("get week: %v", err)
		}
		if !reflect.DeepEqual(days, expected) {
			t.Fatalf("unexpected days: %#v", days)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(weekCacheKey("user-1", "2024-01-01")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCachePutWeekEvicts(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	if _, err := base.PutWeek(ctx, "user-1", "2024-01-01", domain.Days{0: {{ID: "a", Text: "old"}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache, mr := newCacheUnderTest(t, base, time.Minute)

	if _, err := cache.GetWeek(ctx, "user-1", "2024-01-01"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if !mr.Exists(weekCacheKey("user-1", "2024-01-01")) {
		t.Fatalf("expected cache entry after read")
	}

	if _, err := cache.PutWeek(ctx, "user-1", "2024-01-01", domain.Days{0: {{ID: "a", Text: "new"}}}); err != nil {
		t.Fatalf("put week: %v", err)
	}
	if mr.Exists(weekCacheKey("user-1", "2024-01-01")) {
		t.Fatalf("expected write to evict the cache entry")
	}

	days, err := cache.GetWeek(ctx, "user-1", "2024-01-01")
	if err != nil {
		t.Fatalf("get week: %v", err)
	}
	if days[0][0].Text != "new" {
		t.Fatalf("expected fresh read after eviction, got %#v", days[0])
	}
}

func TestCacheFailedWriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCacheUnderTest(t, &stubBackend{
		getWeekFn: func(context.Context, string, string) (domain.Days, error) {
			return domain.Days{0: {{ID: "a", Text: "x"}}}, nil
		},
		putWeekFn: func(context.Context, string, string, domain.Days) (domain.Days, error) {
			return nil, errors.New("backend down")
		},
	}, time.Minute)

	if _, err := cache.GetWeek(ctx, "user-1", "2024-01-01"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := cache.PutWeek(ctx, "user-1", "2024-01-01", domain.Days{}); err == nil {
		t.Fatalf("expected write error")
	}
	if !mr.Exists(weekCacheKey("user-1", "2024-01-01")) {
		t.Fatalf("cache entry should survive a failed write")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache, mr := newCacheUnderTest(t, &stubBackend{
		getWeekFn: func(context.Context, string, string) (domain.Days, error) {
			calls++
			return domain.Days{}, nil
		},
	}, time.Minute)

	if err := mr.Set(weekCacheKey("user-1", "2024-01-01"), "{broken"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, err := cache.GetWeek(ctx, "user-1", "2024-01-01"); err != nil {
		t.Fatalf("get week: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected fallback to backend, got %d calls", calls)
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache := NewCache(&stubBackend{
		getWeekFn: func(context.Context, string, string) (domain.Days, error) {
			calls++
			return domain.Days{}, nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetWeek(ctx, "user-1", "2024-01-01"); err != nil {
			t.Fatalf("get week: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every read to hit the backend, got %d", calls)
	}
}
