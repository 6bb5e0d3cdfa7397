package memdb

import (
	"context"
	"sort"
	"sync"

	"github.com/no-abramov/todoapi/pkg/storage"
)

// Store keeps todo items and request logs in process memory. It is used in
// development mode and by the API tests.
type Store struct {
	mu     sync.Mutex
	todos  map[int64]storage.TodoItem
	logs   []storage.RequestLog
	todoID int64
	logID  int64
}

func New() *Store {
	db := Store{
		todos: make(map[int64]storage.TodoItem),
	}

	return &db
}

func (db *Store) sortedTodos(filter storage.TodoFilter) []storage.TodoItem {
	items := make([]storage.TodoItem, 0, len(db.todos))
	for _, v := range db.todos {
		if filter.Match(v) {
			items = append(items, v)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})

	return items
}

func (db *Store) Todos(ctx context.Context, filter storage.TodoFilter) ([]storage.TodoItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.sortedTodos(filter), nil
}

func (db *Store) TodosPage(ctx context.Context, page, limit int) (items []storage.TodoItem, total int, err error) {
	db.mu.Lock()
	all := db.sortedTodos(storage.TodoFilter{})
	db.mu.Unlock()

	return paginate(all, page, limit), len(all), nil
}

func (db *Store) Todo(ctx context.Context, id int64) (storage.TodoItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	item, ok := db.todos[id]
	if !ok {
		return storage.TodoItem{}, storage.ErrTodoNotFound
	}

	return item, nil
}

func (db *Store) AddTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.todoID++
	item.ID = db.todoID
	item.CreatedDate = storage.Now()
	item.Version = 1
	db.todos[item.ID] = item

	return item, nil
}

func (db *Store) UpdateTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.todos[item.ID]
	if !ok {
		return storage.TodoItem{}, storage.ErrTodoNotFound
	}
	if item.Version != 0 && item.Version != stored.Version {
		return storage.TodoItem{}, storage.ErrConflict
	}

	stored.Title = item.Title
	stored.Description = item.Description
	stored.IsCompleted = item.IsCompleted
	stored.Version++
	db.todos[item.ID] = stored

	return stored, nil
}

func (db *Store) DeleteTodo(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.todos[id]; !ok {
		return storage.ErrTodoNotFound
	}
	delete(db.todos, id)

	return nil
}

func (db *Store) DeleteCompletedTodos(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int
	for id, item := range db.todos {
		if item.IsCompleted {
			delete(db.todos, id)
			n++
		}
	}

	return n, nil
}

func (db *Store) CountTodos(ctx context.Context) (total, completed int, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, item := range db.todos {
		if item.IsCompleted {
			completed++
		}
	}

	return len(db.todos), completed, nil
}

func (db *Store) AddRequestLog(ctx context.Context, entry storage.RequestLog) (storage.RequestLog, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.logID++
	entry.ID = db.logID
	if entry.RequestTime.IsZero() {
		entry.RequestTime = storage.Now()
	}
	db.logs = append(db.logs, entry)

	return entry, nil
}

func (db *Store) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	logs := make([]storage.RequestLog, len(db.logs))
	copy(logs, db.logs)

	return logs, nil
}

func (db *Store) RequestLogsPage(ctx context.Context, page, limit int) (logs []storage.RequestLog, total int, err error) {
	all, _ := db.RequestLogs(ctx)
	return paginate(all, page, limit), len(all), nil
}

func (db *Store) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Logs are appended with increasing ids, so the slice is sorted.
	i := sort.Search(len(db.logs), func(i int) bool { return db.logs[i].ID >= id })
	if i == len(db.logs) || db.logs[i].ID != id {
		return storage.RequestLog{}, storage.ErrRequestLogNotFound
	}

	return db.logs[i], nil
}

func paginate[T any](all []T, page, limit int) []T {
	if limit <= 0 {
		return []T{}
	}

	start := storage.Offset(page, limit)
	if start >= len(all) {
		return []T{}
	}

	end := len(all)
	if limit < end-start {
		end = start + limit
	}

	return all[start:end]
}
