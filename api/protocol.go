package api

import "task-manager/domain"

const (
	requestMaxSize = 64 * 1024 // 64 KiB

	headerIdempotencyKey = "Idempotency-Key"
)

// POST /api/tasks and PUT /api/tasks/:id request body
type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Category    string `json:"category"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type healthResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}
