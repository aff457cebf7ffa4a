package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"weekplan-api/domain"
)

// MutationState tracks a pending optimistic mutation through its lifecycle.
type MutationState int

const (
	StatePending MutationState = iota
	StateCommitted
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// Mutation records one optimistic write: the task as it was sent, and
// whether the server confirmed it or the local state was rolled back.
type Mutation struct {
	WeekKey string
	Day     int
	Task    domain.Task
	State   MutationState
}

const defaultRequestTimeout = 15 * time.Second

// SyncClient issues CRUD calls against the planner API and reconciles the
// TaskStore on success or failure.
type SyncClient struct {
	http    *http.Client
	baseURL string
	token   string
	store   *TaskStore
	logger  *log.Logger
}

// New creates a SyncClient for the given API base URL and session token.
func New(baseURL, token string, store *TaskStore, logger *log.Logger) *SyncClient {
	if store == nil {
		panic("client.New: store is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &SyncClient{
		http:    &http.Client{Timeout: defaultRequestTimeout},
		baseURL: baseURL,
		token:   token,
		store:   store,
		logger:  logger,
	}
}

type daysEnvelope struct {
	Days domain.Days `json:"days"`
}

type taskEnvelope struct {
	Success bool        `json:"success"`
	Task    domain.Task `json:"task"`
	Days    domain.Days `json:"days"`
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.message)
}

func (c *SyncClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = sonic.ConfigStd.Unmarshal(data, &apiErr)
		return &statusError{code: resp.StatusCode, message: apiErr.Error}
	}
	if out != nil {
		return sonic.ConfigStd.Unmarshal(data, out)
	}
	return nil
}

func weekPath(weekKey string) string {
	return "/api/tasks/" + weekKey
}

func taskPath(weekKey string, day int, taskID string) string {
	return weekPath(weekKey) + "/" + strconv.Itoa(day) + "/" + taskID
}

// LoadWeek replaces the store's entry for the week with data fetched from
// the server. Reads fail open: on any failure the week is treated as empty.
func (c *SyncClient) LoadWeek(ctx context.Context, weekKey string) {
	var resp daysEnvelope
	if err := c.do(ctx, http.MethodGet, weekPath(weekKey), nil, &resp); err != nil {
		c.logger.WithFields(log.Fields{"week": weekKey, "error": err.Error()}).Warn("week load failed; treating as empty")
		c.store.ReplaceWeek(weekKey, domain.Days{})
		return
	}
	if resp.Days == nil {
		resp.Days = domain.Days{}
	}
	c.store.ReplaceWeek(weekKey, resp.Days)
}

// CreateTask appends a new task optimistically and persists it with a
// full-week replace, since a task that was never saved has no targeted
// endpoint to ride on. On failure the appended entry is rolled back, but
// only if it still matches what was sent.
func (c *SyncClient) CreateTask(ctx context.Context, weekKey string, day int, text string, status domain.Status) (*Mutation, error) {
	task := domain.Task{ID: domain.NewTaskID(time.Now()), Text: text, Status: status}
	if err := domain.ValidateTask(task); err != nil {
		return nil, err
	}
	if !domain.ValidDayIndex(day) {
		return nil, fmt.Errorf("day index %d out of range 0..6", day)
	}

	m := &Mutation{WeekKey: weekKey, Day: day, Task: task, State: StatePending}
	c.store.UpsertTask(weekKey, day, task)

	payload := daysEnvelope{Days: c.store.Week(weekKey)}
	var resp struct {
		Success bool        `json:"success"`
		WeekKey string      `json:"weekKey"`
		Days    domain.Days `json:"days"`
	}
	if err := c.do(ctx, http.MethodPost, weekPath(weekKey), payload, &resp); err != nil {
		c.store.RemoveTaskIfMatches(weekKey, day, task)
		m.State = StateRolledBack
		c.logger.WithFields(log.Fields{"week": weekKey, "day": day, "error": err.Error()}).Error("task create failed; rolled back")
		return m, err
	}

	if resp.Days != nil {
		c.store.ReplaceWeek(weekKey, resp.Days)
	}
	m.State = StateCommitted
	return m, nil
}

// UpdateTask issues a targeted update for an already-persisted task. Local
// state is only overwritten on success; on failure the user keeps their
// pending edit and may retry.
func (c *SyncClient) UpdateTask(ctx context.Context, weekKey string, day int, taskID, text string, status domain.Status) error {
	body := map[string]any{"text": text, "status": status}
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPut, taskPath(weekKey, day, taskID), body, &resp); err != nil {
		c.logger.WithFields(log.Fields{"week": weekKey, "day": day, "task": taskID, "error": err.Error()}).Error("task update failed")
		return err
	}
	c.store.UpsertTask(weekKey, day, resp.Task)
	return nil
}

// DeleteTask removes the task locally and issues a targeted delete. From
// the user's point of view delete always succeeds: a failed delete of a
// task that was never persisted is not an error, and a genuine network
// failure is only logged.
func (c *SyncClient) DeleteTask(ctx context.Context, weekKey string, day int, taskID string) {
	c.store.RemoveTask(weekKey, day, taskID)
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodDelete, taskPath(weekKey, day, taskID), nil, &resp); err != nil {
		c.logger.WithFields(log.Fields{"week": weekKey, "day": day, "task": taskID, "error": err.Error()}).Warn("task delete not confirmed by server")
	}
}

// ClearWeek issues a whole-week delete and drops the local entry without
// per-task reconciliation.
func (c *SyncClient) ClearWeek(ctx context.Context, weekKey string) error {
	c.store.Clear(weekKey)
	var resp struct {
		Cleared bool `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodDelete, weekPath(weekKey), nil, &resp); err != nil {
		c.logger.WithFields(log.Fields{"week": weekKey, "error": err.Error()}).Error("week clear failed")
		return err
	}
	return nil
}
