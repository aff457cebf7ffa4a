package api

import (
	"context"

	"weekplan-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
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

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of retried append requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails so the
	// client may retry.
	Remove(ctx context.Context, userID, key string) error
}
