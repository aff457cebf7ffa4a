package api

import "weekplan-api/domain"

const (
	putWeekMaxSize = 256 * 1024 // 256 KiB
	taskMaxSize    = 4 * 1024   // 4 KiB
	authMaxSize    = 4 * 1024   // 4 KiB
)

// POST /api/tasks/:weekKey request body.
type putWeekRequest struct {
	Days *domain.Days `json:"days"`
}

// POST /api/tasks/:weekKey response body.
type putWeekResponse struct {
	Success bool        `json:"success"`
	WeekKey string      `json:"weekKey"`
	Days    domain.Days `json:"days"`
}

// POST /api/tasks/:weekKey/:dayIndex request body.
type appendTaskRequest struct {
	ID     string        `json:"id,omitempty"`
	Text   string        `json:"text"`
	Status domain.Status `json:"status,omitempty"`
}

// Task is nil on an idempotent replay where the stored task's id cannot be
// determined from the request.
type appendTaskResponse struct {
	Success bool         `json:"success"`
	Task    *domain.Task `json:"task,omitempty"`
	Days    domain.Days  `json:"days"`
}

// PUT /api/tasks/:weekKey/:dayIndex/:taskId request body.
type updateTaskRequest struct {
	Text   string        `json:"text"`
	Status domain.Status `json:"status,omitempty"`
}

type updateTaskResponse struct {
	Success bool        `json:"success"`
	Task    domain.Task `json:"task"`
}

type deleteTaskResponse struct {
	Success bool        `json:"success"`
	Days    domain.Days `json:"days"`
}

type clearWeekResponse struct {
	Cleared bool `json:"cleared"`
}

// POST /api/auth/register and /api/auth/login request body.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type errorResponse struct {
	Error string `json:"error"`
}
