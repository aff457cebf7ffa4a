package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"weekplan-api/domain"
)

// Memory is an in-memory store with the same semantics as Storage. It backs
// tests and local development.
type Memory struct {
	mu     sync.Mutex
	weeks  map[string]map[string]domain.Days // userID -> weekKey -> days
	users  map[string]domain.User            // lowercased email -> user
	events []domain.ChangeEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		weeks: make(map[string]map[string]domain.Days),
		users: make(map[string]domain.User),
	}
}

func (m *Memory) GetWeek(ctx context.Context, userID, weekKey string) (domain.Days, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.weeks[userID][weekKey]
	if !ok {
		return domain.Days{}, nil
	}
	return days.Clone(), nil
}

func (m *Memory) PutWeek(ctx context.Context, userID, weekKey string, days domain.Days) (domain.Days, error) {
	if days == nil {
		return nil, fmt.Errorf("%w: days mapping is required", ErrInvalidPayload)
	}
	if err := days.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	days = days.Clone()
	days.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.weeks[userID] == nil {
		m.weeks[userID] = make(map[string]domain.Days)
	}
	m.weeks[userID][weekKey] = days
	return days.Clone(), nil
}

func (m *Memory) AppendTask(ctx context.Context, userID, weekKey string, day int, task domain.Task) (domain.Days, error) {
	if !domain.ValidDayIndex(day) {
		return nil, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	if err := domain.ValidateTask(task); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.weeks[userID] == nil {
		m.weeks[userID] = make(map[string]domain.Days)
	}
	days, ok := m.weeks[userID][weekKey]
	if !ok {
		days = domain.Days{}
		m.weeks[userID][weekKey] = days
	}
	days.Upsert(day, task)
	return days.Clone(), nil
}

func (m *Memory) UpdateTask(ctx context.Context, userID, weekKey string, day int, taskID, text string, status domain.Status) (domain.Task, error) {
	if !domain.ValidDayIndex(day) {
		return domain.Task{}, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	updated := domain.Task{ID: taskID, Text: text, Status: status}
	if err := domain.ValidateTask(updated); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.weeks[userID][weekKey]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: week %s", ErrNotFound, weekKey)
	}
	if len(days[day]) == 0 {
		return domain.Task{}, fmt.Errorf("%w: day %d of week %s", ErrNotFound, day, weekKey)
	}
	if !days.Update(day, taskID, text, status) {
		return domain.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return updated, nil
}

func (m *Memory) DeleteTask(ctx context.Context, userID, weekKey string, day int, taskID string) (domain.Days, error) {
	if !domain.ValidDayIndex(day) {
		return nil, fmt.Errorf("%w: day index %d", ErrInvalidPayload, day)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.weeks[userID][weekKey]
	if !ok {
		return nil, fmt.Errorf("%w: week %s", ErrNotFound, weekKey)
	}
	if len(days[day]) == 0 {
		return nil, fmt.Errorf("%w: day %d of week %s", ErrNotFound, day, weekKey)
	}
	days.Remove(day, taskID)
	days.Normalize()
	return days.Clone(), nil
}

func (m *Memory) ClearWeek(ctx context.Context, userID, weekKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.weeks[userID], weekKey)
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, user domain.User) error {
	key := strings.ToLower(user.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[key]; ok {
		return fmt.Errorf("%w: user %s", ErrConflict, user.Email)
	}
	m.users[key] = user
	return nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[strings.ToLower(email)]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	return user, nil
}

func (m *Memory) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Changes returns a copy of the change events published so far.
func (m *Memory) Changes() []domain.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChangeEvent, len(m.events))
	copy(out, m.events)
	return out
}
