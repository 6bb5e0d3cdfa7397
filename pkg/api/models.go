package api

import "github.com/no-abramov/todoapi/pkg/storage"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// TodoInput is the client side of a todo item. Server-owned fields such as
// createdDate are not read from requests.
type TodoInput struct {
	ID          int64   `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsCompleted bool    `json:"isCompleted"`
}

type TodoPage struct {
	TotalItems  int                `json:"totalItems"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Items       []storage.TodoItem `json:"items"`
}

type RequestLogPage struct {
	TotalItems  int                  `json:"totalItems"`
	TotalPages  int                  `json:"totalPages"`
	CurrentPage int                  `json:"currentPage"`
	Logs        []storage.RequestLog `json:"logs"`
}

type CleanupResponse struct {
	DeletedCount int `json:"deletedCount"`
}

type SummaryResponse struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	PendingTasks   int `json:"pendingTasks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
