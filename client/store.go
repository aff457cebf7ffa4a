// Package client holds the browser-side half of the planner: an in-memory
// task store that is the single source of truth for the UI, and a sync
// client that pushes its mutations to the server optimistically.
package client

import (
	"sync"

	"weekplan-api/domain"
)

// TaskStore is the client-visible task state, a mapping of week key to day
// index to ordered task list. It is mutated optimistically before network
// confirmation and reconciled afterwards.
type TaskStore struct {
	mu    sync.Mutex
	weeks map[string]domain.Days
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{weeks: make(map[string]domain.Days)}
}

// ReplaceWeek replaces the store's entry for the week with the given days.
func (s *TaskStore) ReplaceWeek(weekKey string, days domain.Days) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weeks[weekKey] = days.Clone()
}

// Week returns a snapshot of the week's days. An unknown week is empty.
func (s *TaskStore) Week(weekKey string) domain.Days {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weeks[weekKey].Clone()
}

// DayList returns a snapshot of one day's task list.
func (s *TaskStore) DayList(weekKey string, day int) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.weeks[weekKey][day]
	out := make([]domain.Task, len(list))
	copy(out, list)
	return out
}

// UpsertTask inserts the task into the day list, or replaces the entry with
// the same id in place.
func (s *TaskStore) UpsertTask(weekKey string, day int, task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.weeks[weekKey]
	if !ok {
		days = domain.Days{}
		s.weeks[weekKey] = days
	}
	days.Upsert(day, task)
}

// RemoveTask removes a task by id. Removing an absent id is a no-op.
func (s *TaskStore) RemoveTask(weekKey string, day int, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weeks[weekKey].Remove(day, taskID)
}

// RemoveTaskIfMatches removes the task only when the stored entry still has
// the same id and text as the given task. It backs create rollback: if the
// user edited the task while the create was in flight, the edit survives.
func (s *TaskStore) RemoveTaskIfMatches(weekKey string, day int, task domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := s.weeks[weekKey]
	current, ok := days.Find(day, task.ID)
	if !ok || current.Text != task.Text {
		return false
	}
	return days.Remove(day, task.ID)
}

// Clear empties all day lists for the week.
func (s *TaskStore) Clear(weekKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.weeks, weekKey)
}
