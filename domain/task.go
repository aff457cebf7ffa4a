package domain

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Status is the completion state of a task. The zero value means the user
// has not marked the task yet.
type Status string

const (
	StatusNone      Status = ""
	StatusCompleted Status = "Completed"
	StatusAbandoned Status = "Abandoned"
	StatusInProcess Status = "In Process"
)

// Valid reports whether s is one of the known statuses or unset.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusCompleted, StatusAbandoned, StatusInProcess:
		return true
	}
	return false
}

// Task represents a single planner item within a day list.
type Task struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status Status `json:"status,omitempty"`
}

const maxTaskTextLen = 100

// ValidateTask checks the save-time constraints on a task: a non-empty id,
// text between 1 and 100 characters, and a known status.
func ValidateTask(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	n := utf8.RuneCountInString(t.Text)
	if n == 0 {
		return fmt.Errorf("task text is required")
	}
	if n > maxTaskTextLen {
		return fmt.Errorf("task text exceeds %d characters", maxTaskTextLen)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown task status %q", t.Status)
	}
	return nil
}

// NewTaskID returns a fresh client-generated task identifier: the creation
// time in milliseconds plus a random suffix.
func NewTaskID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}
