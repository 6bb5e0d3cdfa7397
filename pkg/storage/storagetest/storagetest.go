// Package storagetest holds the behavioural checks every storage backend must pass.
// Backend packages call TestTodos / TestRequestLogs from their own tests with a
// constructor returning an empty store.
package storagetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/no-abramov/todoapi/pkg/storage"
)

func strPtr(s string) *string { return &s }

func addTodos(t *testing.T, db storage.Todos, n int, completed func(i int) bool) []storage.TodoItem {
	t.Helper()

	items := make([]storage.TodoItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := db.AddTodo(context.Background(), storage.TodoItem{
			Title:       strPtr("task"),
			IsCompleted: completed(i),
		})
		if err != nil {
			t.Fatalf("unexpected error while adding todo: %v", err)
		}
		items = append(items, item)
	}

	return items
}

func never(int) bool { return false }

// TestTodos runs the todo item checks against stores produced by newStore.
func TestTodos(t *testing.T, newStore func(t *testing.T) storage.Todos) {
	t.Run("AddTodo assigns id and creation date", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()

		clientDate := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
		before := storage.Now()
		first, err := db.AddTodo(ctx, storage.TodoItem{ID: 42, Title: strPtr("Buy milk"), CreatedDate: clientDate})
		if err != nil {
			t.Fatalf("unexpected error while adding todo: %v", err)
		}
		second, err := db.AddTodo(ctx, storage.TodoItem{ID: 42, Description: strPtr("second")})
		if err != nil {
			t.Fatalf("unexpected error while adding todo: %v", err)
		}

		if first.ID <= 0 {
			t.Errorf("want positive server-assigned id, got %d", first.ID)
		}
		if second.ID <= first.ID {
			t.Errorf("want monotonic ids, got %d after %d", second.ID, first.ID)
		}
		if first.CreatedDate.Equal(clientDate) || first.CreatedDate.Before(before.Add(-time.Second)) {
			t.Errorf("want server-side creation date, got %v", first.CreatedDate)
		}
		if first.CreatedDate.After(storage.Now()) {
			t.Errorf("creation date %v is in the future", first.CreatedDate)
		}
		if first.CreatedDate.Location() != time.UTC {
			t.Errorf("want UTC creation date, got location %v", first.CreatedDate.Location())
		}
		if first.IsCompleted {
			t.Error("want new item not completed")
		}

		got, err := db.Todo(ctx, first.ID)
		if err != nil {
			t.Fatalf("unexpected error retrieving todo: %v", err)
		}
		if got.Title == nil || *got.Title != "Buy milk" {
			t.Errorf("want title %q, got %v", "Buy milk", got.Title)
		}
		if got.Description != nil {
			t.Errorf("want nil description, got %q", *got.Description)
		}
		if !got.CreatedDate.Equal(first.CreatedDate) {
			t.Errorf("want creation date %v, got %v", first.CreatedDate, got.CreatedDate)
		}
	})

	t.Run("Todo not found", func(t *testing.T) {
		db := newStore(t)
		_, err := db.Todo(context.Background(), 999)
		if !errors.Is(err, storage.ErrTodoNotFound) {
			t.Errorf("want error %v, got %v", storage.ErrTodoNotFound, err)
		}
	})

	t.Run("Todos filter", func(t *testing.T) {
		db := newStore(t)
		addTodos(t, db, 5, func(i int) bool { return i%2 == 0 })

		done, pending := true, false
		tests := []struct {
			name   string
			filter storage.TodoFilter
			want   int
		}{
			{name: "all", filter: storage.TodoFilter{}, want: 5},
			{name: "completed", filter: storage.TodoFilter{IsCompleted: &done}, want: 3},
			{name: "pending", filter: storage.TodoFilter{IsCompleted: &pending}, want: 2},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				items, err := db.Todos(context.Background(), tt.filter)
				if err != nil {
					t.Fatalf("Todos returned error: %v", err)
				}
				if len(items) != tt.want {
					t.Errorf("want %d items, got %d", tt.want, len(items))
				}
				for i := 1; i < len(items); i++ {
					if items[i].ID <= items[i-1].ID {
						t.Errorf("want items ordered by id, got %d after %d", items[i].ID, items[i-1].ID)
					}
				}
			})
		}
	})

	t.Run("TodosPage", func(t *testing.T) {
		db := newStore(t)
		added := addTodos(t, db, 7, never)

		tests := []struct {
			name    string
			page    int
			limit   int
			wantIDs []int64
		}{
			{name: "first page", page: 1, limit: 3, wantIDs: []int64{added[0].ID, added[1].ID, added[2].ID}},
			{name: "second page", page: 2, limit: 3, wantIDs: []int64{added[3].ID, added[4].ID, added[5].ID}},
			{name: "last page, fewer items", page: 3, limit: 3, wantIDs: []int64{added[6].ID}},
			{name: "beyond last page", page: 4, limit: 3, wantIDs: nil},
			{name: "offset past int range", page: 3, limit: math.MaxInt/2 + 1, wantIDs: nil},
			{name: "huge page size", page: 1, limit: math.MaxInt, wantIDs: []int64{
				added[0].ID, added[1].ID, added[2].ID, added[3].ID, added[4].ID, added[5].ID, added[6].ID,
			}},
			{name: "everything on one page", page: 1, limit: 10, wantIDs: []int64{
				added[0].ID, added[1].ID, added[2].ID, added[3].ID, added[4].ID, added[5].ID, added[6].ID,
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				items, total, err := db.TodosPage(context.Background(), tt.page, tt.limit)
				if err != nil {
					t.Fatalf("TodosPage returned error: %v", err)
				}
				if total != len(added) {
					t.Errorf("want total %d, got %d", len(added), total)
				}
				if len(items) != len(tt.wantIDs) {
					t.Fatalf("want %d items, got %d", len(tt.wantIDs), len(items))
				}
				for i, item := range items {
					if item.ID != tt.wantIDs[i] {
						t.Errorf("want id %d at position %d, got %d", tt.wantIDs[i], i, item.ID)
					}
				}
			})
		}
	})

	t.Run("UpdateTodo", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()
		item := addTodos(t, db, 1, never)[0]

		update := storage.TodoItem{
			ID:          item.ID,
			Title:       strPtr("renamed"),
			Description: strPtr("details"),
			IsCompleted: true,
			CreatedDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		got, err := db.UpdateTodo(ctx, update)
		if err != nil {
			t.Fatalf("UpdateTodo returned error: %v", err)
		}
		if !got.IsCompleted || got.Title == nil || *got.Title != "renamed" {
			t.Errorf("update not applied: %+v", got)
		}
		if !got.CreatedDate.Equal(item.CreatedDate) {
			t.Errorf("want creation date unchanged %v, got %v", item.CreatedDate, got.CreatedDate)
		}
		if got.Version <= item.Version {
			t.Errorf("want version bumped above %d, got %d", item.Version, got.Version)
		}

		stored, err := db.Todo(ctx, item.ID)
		if err != nil {
			t.Fatalf("unexpected error retrieving todo: %v", err)
		}
		if stored.Description == nil || *stored.Description != "details" {
			t.Errorf("want stored description %q, got %v", "details", stored.Description)
		}
		if !stored.CreatedDate.Equal(item.CreatedDate) {
			t.Errorf("want stored creation date unchanged %v, got %v", item.CreatedDate, stored.CreatedDate)
		}
	})

	t.Run("UpdateTodo conflict and not found", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()
		item := addTodos(t, db, 1, never)[0]

		// A writer that read the item before this update holds a stale version.
		stale := item
		item.IsCompleted = true
		if _, err := db.UpdateTodo(ctx, item); err != nil {
			t.Fatalf("UpdateTodo returned error: %v", err)
		}

		stale.Title = strPtr("stale write")
		_, err := db.UpdateTodo(ctx, stale)
		if !errors.Is(err, storage.ErrConflict) {
			t.Errorf("want error %v, got %v", storage.ErrConflict, err)
		}

		_, err = db.UpdateTodo(ctx, storage.TodoItem{ID: item.ID + 100, Version: 1})
		if !errors.Is(err, storage.ErrTodoNotFound) {
			t.Errorf("want error %v for conditional write, got %v", storage.ErrTodoNotFound, err)
		}
		_, err = db.UpdateTodo(ctx, storage.TodoItem{ID: item.ID + 100})
		if !errors.Is(err, storage.ErrTodoNotFound) {
			t.Errorf("want error %v for unconditional write, got %v", storage.ErrTodoNotFound, err)
		}
	})

	t.Run("DeleteTodo", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()
		item := addTodos(t, db, 1, never)[0]

		if err := db.DeleteTodo(ctx, item.ID); err != nil {
			t.Fatalf("DeleteTodo returned error: %v", err)
		}
		if _, err := db.Todo(ctx, item.ID); !errors.Is(err, storage.ErrTodoNotFound) {
			t.Errorf("want error %v after delete, got %v", storage.ErrTodoNotFound, err)
		}
		if err := db.DeleteTodo(ctx, item.ID); !errors.Is(err, storage.ErrTodoNotFound) {
			t.Errorf("want error %v on second delete, got %v", storage.ErrTodoNotFound, err)
		}
	})

	t.Run("DeleteCompletedTodos and CountTodos", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()
		added := addTodos(t, db, 6, func(i int) bool { return i < 4 })

		total, completed, err := db.CountTodos(ctx)
		if err != nil {
			t.Fatalf("CountTodos returned error: %v", err)
		}
		if total != 6 || completed != 4 {
			t.Errorf("want total 6 completed 4, got total %d completed %d", total, completed)
		}

		n, err := db.DeleteCompletedTodos(ctx)
		if err != nil {
			t.Fatalf("DeleteCompletedTodos returned error: %v", err)
		}
		if n != 4 {
			t.Errorf("want 4 deleted, got %d", n)
		}

		left, err := db.Todos(ctx, storage.TodoFilter{})
		if err != nil {
			t.Fatalf("Todos returned error: %v", err)
		}
		if len(left) != 2 || left[0].ID != added[4].ID || left[1].ID != added[5].ID {
			t.Errorf("want pending items %d and %d left, got %+v", added[4].ID, added[5].ID, left)
		}

		n, err = db.DeleteCompletedTodos(ctx)
		if err != nil {
			t.Fatalf("DeleteCompletedTodos returned error: %v", err)
		}
		if n != 0 {
			t.Errorf("want 0 deleted on second cleanup, got %d", n)
		}
	})
}

// TestRequestLogs runs the request log checks against stores produced by newStore.
func TestRequestLogs(t *testing.T, newStore func(t *testing.T) storage.RequestLogs) {
	t.Run("AddRequestLog and RequestLog", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()

		first, err := db.AddRequestLog(ctx, storage.RequestLog{IPAddress: "10.0.0.1", HTTPMethod: "GET", Path: "/api/todo"})
		if err != nil {
			t.Fatalf("AddRequestLog returned error: %v", err)
		}
		second, err := db.AddRequestLog(ctx, storage.RequestLog{IPAddress: "Unknown", HTTPMethod: "POST", Path: "/api/todo"})
		if err != nil {
			t.Fatalf("AddRequestLog returned error: %v", err)
		}

		if first.ID <= 0 || second.ID <= first.ID {
			t.Errorf("want positive monotonic ids, got %d then %d", first.ID, second.ID)
		}
		if first.RequestTime.IsZero() {
			t.Error("want request time set by the store")
		}

		got, err := db.RequestLog(ctx, second.ID)
		if err != nil {
			t.Fatalf("RequestLog returned error: %v", err)
		}
		if got.HTTPMethod != "POST" || got.Path != "/api/todo" || got.IPAddress != "Unknown" {
			t.Errorf("want stored entry %+v, got %+v", second, got)
		}
		if !got.RequestTime.Equal(second.RequestTime) {
			t.Errorf("want request time %v, got %v", second.RequestTime, got.RequestTime)
		}

		_, err = db.RequestLog(ctx, second.ID+100)
		if !errors.Is(err, storage.ErrRequestLogNotFound) {
			t.Errorf("want error %v, got %v", storage.ErrRequestLogNotFound, err)
		}
	})

	t.Run("RequestLogs and RequestLogsPage", func(t *testing.T) {
		db := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := db.AddRequestLog(ctx, storage.RequestLog{IPAddress: "127.0.0.1", HTTPMethod: "GET", Path: "/healthz"})
			if err != nil {
				t.Fatalf("AddRequestLog returned error: %v", err)
			}
		}

		all, err := db.RequestLogs(ctx)
		if err != nil {
			t.Fatalf("RequestLogs returned error: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("want 5 logs, got %d", len(all))
		}

		page, total, err := db.RequestLogsPage(ctx, 2, 2)
		if err != nil {
			t.Fatalf("RequestLogsPage returned error: %v", err)
		}
		if total != 5 {
			t.Errorf("want total 5, got %d", total)
		}
		if len(page) != 2 || page[0].ID != all[2].ID || page[1].ID != all[3].ID {
			t.Errorf("want logs %d and %d on page 2, got %+v", all[2].ID, all[3].ID, page)
		}

		page, _, err = db.RequestLogsPage(ctx, 3, 2)
		if err != nil {
			t.Fatalf("RequestLogsPage returned error: %v", err)
		}
		if len(page) != 1 {
			t.Errorf("want 1 log on last page, got %d", len(page))
		}
	})
}
