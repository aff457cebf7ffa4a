package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"weekplan-api/domain"
)

// Storage provides access to underlying persistence mechanisms. Week
// documents live in one table partitioned by user, accounts in another, and
// change events are published to a queue for downstream read models.
type Storage struct {
	weekTable   *aztables.Client
	userTable   *aztables.Client
	changeQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, weeksTable, usersTable, changeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	wt := svc.NewClient(weeksTable)
	ut := svc.NewClient(usersTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{weekTable: wt, userTable: ut, changeQueue: cq}, nil
}

type weekEntity struct {
	aztables.Entity
	Days      string `json:"Days"`
	UpdatedAt string `json:"UpdatedAt"`
}

type userEntity struct {
	aztables.Entity
	ID           string `json:"ID"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

const userPartition = "users"

func encodeWeekEntity(userID, weekKey string, days domain.Days, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(days)
	if err != nil {
		return nil, err
	}
	ent := weekEntity{
		Entity: aztables.Entity{
			PartitionKey: userID,
			RowKey:       weekKey,
		},
		Days:      string(payload),
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(ent)
}

func decodeWeekEntity(data []byte) (weekEntity, domain.Week, error) {
	var ent weekEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return weekEntity{}, domain.Week{}, err
	}
	days := domain.Days{}
	if ent.Days != "" {
		if err := json.Unmarshal([]byte(ent.Days), &days); err != nil {
			return weekEntity{}, domain.Week{}, fmt.Errorf("corrupt days payload for %s/%s: %w", ent.PartitionKey, ent.RowKey, err)
		}
	}
	days.Normalize()
	updatedAt, _ := time.Parse(time.RFC3339Nano, ent.UpdatedAt)
	return ent, domain.Week{WeekKey: ent.RowKey, Days: days, UpdatedAt: updatedAt}, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func (s *Storage) loadWeek(ctx context.Context, userID, weekKey string) (azcore.ETag, domain.Week, bool, error) {
	resp, err := s.weekTable.GetEntity(ctx, userID, weekKey, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", domain.Week{WeekKey: weekKey, Days: domain.Days{}}, false, nil
		}
		return "", domain.Week{}, false, err
	}
	_, week, err := decodeWeekEntity(resp.Value)
	if err != nil {
		return "", domain.Week{}, false, err
	}
	return resp.ETag, week, true, nil
}

// GetWeek retrieves the days mapping for a week. A missing document is
// valid empty state, never an error.
func (s *Storage) GetWeek(ctx context.Context, userID, weekKey string) (domain.Days, error) {
	_, week, _, err := s.loadWeek(ctx, userID, weekKey)
	if err != nil {
		return nil, err
	}
	return week.Days, nil
}

// PutWeek upserts the whole week document, replacing any existing days.
func (s *Storage) PutWeek(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error) {
	if days == nil {
		return nil, fmt.Errorf("%w: days mapping is required", ErrInvalidPayload)
	}
	if err := days.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	days = days.Clone()
	days.Normalize()
	data, err := encodeWeekEntity(userID, weekKey, days, time.Now())
	if err != nil {
		return nil, err
	}
	_, err = s.weekTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		return nil, err
	}
	return days, nil
}

// mutateWeek runs a read-modify-write cycle against the week entity with an
// ETag-conditional replace, retried once when a concurrent write lands in
// between.
func (s *Storage) mutateWeek(ctx context.Context, userID, weekKey string, mutate func(domain.Days) error) (domain.Days, error) {
	for attempt := 0; ; attempt++ {
		etag, week, found, err := s.loadWeek(ctx, userID, weekKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: week %s", ErrNotFound, weekKey)
		}
		days := week.Days
		if err := mutate(days); err != nil {
			return nil, err
		}
		days.Normalize()
		data, err := encodeWeekEntity(userID, weekKey, days, time.Now())
		if err != nil {
			return nil, err
		}
		_, err = s.weekTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err == nil {
			return days, nil
		}
		if isStatus(err, http.StatusPreconditionFailed) && attempt == 0 {
			continue
		}
		return nil, err
	}
}

// AppendTask adds a single task to a day list, creating the week document
// when it does not exist yet.
func (s *Storage) AppendTask(ctx context.Context, userID, weekKey string, day int, task domain.Task) (domain.Days, error) {
	if !domain.ValidDayIndex(day) {
		return nil, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	if err := domain.ValidateTask(task); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	days, err := s.mutateWeek(ctx, userID, weekKey, func(d domain.Days) error {
		d.Upsert(day, task)
		return nil
	})
	if err == nil || !errors.Is(err, ErrNotFound) {
		return days, err
	}
	// First task of the week: create the document.
	return s.PutWeek(ctx, userID, weekKey, domain.Days{day: {task}})
}

// UpdateTask replaces the text and status of an existing task. The week,
// day list and task must all exist.
func (s *Storage) UpdateTask(ctx context.Context, userID, weekKey string, day int, taskID, text string, status domain.Status) (domain.Task, error) {
	if !domain.ValidDayIndex(day) {
		return domain.Task{}, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	updated := domain.Task{ID: taskID, Text: text, Status: status}
	if err := domain.ValidateTask(updated); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	_, err := s.mutateWeek(ctx, userID, weekKey, func(d domain.Days) error {
		if len(d[day]) == 0 {
			return fmt.Errorf("%w: day %d of week %s", ErrNotFound, day, weekKey)
		}
		if !d.Update(day, taskID, text, status) {
			return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// DeleteTask removes a task by id. The week and day list must exist, but
// deleting an id that is already gone succeeds and leaves the list as is.
func (s *Storage) DeleteTask(ctx context.Context, userID, weekKey string, day int, taskID string) (domain.Days, error) {
	if !domain.ValidDayIndex(day) {
		return nil, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	return s.mutateWeek(ctx, userID, weekKey, func(d domain.Days) error {
		if len(d[day]) == 0 {
			return fmt.Errorf("%w: day %d of week %s", ErrNotFound, day, weekKey)
		}
		d.Remove(day, taskID)
		return nil
	})
}

// ClearWeek deletes the whole week document. Clearing a week that was never
// written is a success.
func (s *Storage) ClearWeek(ctx context.Context, userID, weekKey string) error {
	_, err := s.weekTable.DeleteEntity(ctx, userID, weekKey, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

// CreateUser inserts a new account record keyed by its normalized email.
func (s *Storage) CreateUser(ctx context.Context, user domain.User) error {
	ent := userEntity{
		Entity: aztables.Entity{
			PartitionKey: userPartition,
			RowKey:       strings.ToLower(user.Email),
		},
		ID:           user.ID,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, data, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return fmt.Errorf("%w: user %s", ErrConflict, user.Email)
		}
		return err
	}
	return nil
}

// UserByEmail looks up an account by email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, strings.ToLower(email), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.User{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
		return domain.User{}, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.User{}, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	return domain.User{
		ID:           ent.ID,
		Email:        ent.RowKey,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

// PublishChange sends a change event to the change feed queue.
func (s *Storage) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.changeQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
