package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"weekplan-api/domain"
)

type backend interface {
	GetWeek(ctx context.Context, userID, weekKey string) (domain.Days, error)
	PutWeek(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error)
	AppendTask(ctx context.Context, userID, weekKey string, day int, task domain.Task) (domain.Days, error)
	UpdateTask(ctx context.Context, userID, weekKey string, day int, taskID, text string, status domain.Status) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, weekKey string, day int, taskID string) (domain.Days, error)
	ClearWeek(ctx context.Context, userID, weekKey string) error
	CreateUser(ctx context.Context, user domain.User) error
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Cache wraps a store with Redis-backed caching for week reads. Writes pass
// through and evict the affected week.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching store wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) GetWeek(ctx context.Context, userID, weekKey string) (domain.Days, error) {
	if days, ok := c.loadFromCache(ctx, userID, weekKey); ok {
		return days, nil
	}

	days, err := c.base.GetWeek(ctx, userID, weekKey)
	if err != nil {
		return nil, err
	}

	c.storeWeek(ctx, userID, weekKey, days)
	return days, nil
}

func (c *Cache) PutWeek(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error) {
	stored, err := c.base.PutWeek(ctx, userID, weekKey, days)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, userID, weekKey)
	return stored, nil
}

func (c *Cache) AppendTask(ctx context.Context, userID, weekKey string, day int, task domain.Task) (domain.Days, error) {
	stored, err := c.base.AppendTask(ctx, userID, weekKey, day, task)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, userID, weekKey)
	return stored, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, weekKey string, day int, taskID, text string, status domain.Status) (domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, userID, weekKey, day, taskID, text, status)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID, weekKey)
	return task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, weekKey string, day int, taskID string) (domain.Days, error) {
	days, err := c.base.DeleteTask(ctx, userID, weekKey, day, taskID)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, userID, weekKey)
	return days, nil
}

func (c *Cache) ClearWeek(ctx context.Context, userID, weekKey string) error {
	if err := c.base.ClearWeek(ctx, userID, weekKey); err != nil {
		return err
	}
	c.evict(ctx, userID, weekKey)
	return nil
}

func (c *Cache) CreateUser(ctx context.Context, user domain.User) error {
	return c.base.CreateUser(ctx, user)
}

func (c *Cache) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return c.base.UserByEmail(ctx, email)
}

func (c *Cache) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	return c.base.PublishChange(ctx, ev)
}

func (c *Cache) loadFromCache(ctx context.Context, userID, weekKey string) (domain.Days, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, weekCacheKey(userID, weekKey)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, weekCacheKey(userID, weekKey)).Err()
		}
		return nil, false
	}
	var days domain.Days
	if err := json.Unmarshal(data, &days); err != nil {
		_ = c.redis.Del(ctx, weekCacheKey(userID, weekKey)).Err()
		return nil, false
	}
	if days == nil {
		days = domain.Days{}
	}
	return days, true
}

func (c *Cache) storeWeek(ctx context.Context, userID, weekKey string, days domain.Days) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(days)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, weekCacheKey(userID, weekKey), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID, weekKey string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, weekCacheKey(userID, weekKey)).Result()
}

func weekCacheKey(userID, weekKey string) string {
	return "week:" + userID + ":" + weekKey
}
