// Package storage defines the persistence contract shared by the todo item and
// request log stores together with the entities they keep.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrConnectDB       = fmt.Errorf("unable to establish DB connection")
	ErrDBNotResponding = fmt.Errorf("DB not responding")

	ErrTodoNotFound       = errors.New("todo item not found")
	ErrRequestLogNotFound = errors.New("request log not found")

	// ErrConflict is returned by a conditional write when the row still exists
	// but was changed after it had been read.
	ErrConflict = errors.New("todo item was modified concurrently")
)

// TodoItem is a single task. Version is an internal optimistic concurrency
// counter and never leaves the server.
type TodoItem struct {
	ID          int64     `json:"id"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	CreatedDate time.Time `json:"createdDate"`
	IsCompleted bool      `json:"isCompleted"`
	Version     int64     `json:"-"`
}

// RequestLog is one record per logged inbound HTTP request. Entries are
// append-only: no store exposes update or delete for them.
type RequestLog struct {
	ID          int64     `json:"id"`
	IPAddress   string    `json:"ipAddress"`
	HTTPMethod  string    `json:"httpMethod"`
	Path        string    `json:"path"`
	RequestTime time.Time `json:"requestTime"`
}

// TodoFilter narrows Todos. A nil IsCompleted matches every item.
type TodoFilter struct {
	IsCompleted *bool
}

func (f TodoFilter) Match(item TodoItem) bool {
	return f.IsCompleted == nil || *f.IsCompleted == item.IsCompleted
}

type Todos interface {
	// Todos returns the items matching the filter ordered by ID.
	Todos(ctx context.Context, filter TodoFilter) ([]TodoItem, error)
	// TodosPage returns one page of items ordered by ID and the total number of items.
	TodosPage(ctx context.Context, page, limit int) (items []TodoItem, total int, err error)
	Todo(ctx context.Context, id int64) (TodoItem, error)
	// AddTodo stores a new item. The store assigns ID, CreatedDate and Version,
	// ignoring whatever the caller put there.
	AddTodo(ctx context.Context, item TodoItem) (TodoItem, error)
	// UpdateTodo overwrites title, description and completion flag. A non-zero
	// item.Version makes the write conditional on the stored version.
	UpdateTodo(ctx context.Context, item TodoItem) (TodoItem, error)
	DeleteTodo(ctx context.Context, id int64) error
	// DeleteCompletedTodos removes every completed item and returns how many were removed.
	DeleteCompletedTodos(ctx context.Context) (int, error)
	CountTodos(ctx context.Context) (total, completed int, err error)
}

type RequestLogs interface {
	// AddRequestLog appends an entry. The store assigns ID; a zero RequestTime
	// is replaced with the current UTC time.
	AddRequestLog(ctx context.Context, entry RequestLog) (RequestLog, error)
	RequestLogs(ctx context.Context) ([]RequestLog, error)
	RequestLogsPage(ctx context.Context, page, limit int) (logs []RequestLog, total int, err error)
	RequestLog(ctx context.Context, id int64) (RequestLog, error)
}

// Storage is implemented by the stores able to keep both entities.
type Storage interface {
	Todos
	RequestLogs
}

// Now returns the current UTC time truncated to what every backend can round trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NumPages returns the number of pages of size limit needed for total items.
func NumPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total-1)/limit + 1
}

// Offset converts a 1-based page number into a row offset. It saturates at
// math.MaxInt instead of wrapping, so a huge page lands past every row.
func Offset(page, limit int) int {
	if page < 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}
