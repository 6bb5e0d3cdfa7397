package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/no-abramov/todoapi/pkg/storage"
	"github.com/no-abramov/todoapi/pkg/storage/memdb"
)

// seedMixed stores items 1..n, every even one completed.
func seedMixed(t *testing.T, db *memdb.Store, n int) {
	t.Helper()

	seedTodos(t, db, n)
	for id := int64(2); id <= int64(n); id += 2 {
		item, _ := db.Todo(context.Background(), id)
		item.IsCompleted = true
		if _, err := db.UpdateTodo(context.Background(), item); err != nil {
			t.Fatalf("unexpected error completing todo %d: %v", id, err)
		}
	}
}

func TestAPI_filteredTodosHandler(t *testing.T) {
	api, db := newTestAPI(t)
	seedMixed(t, db, 5)

	tests := []struct {
		name       string
		path       string
		statusWant int
		idsWant    []int64
	}{
		{name: "no filter", path: "/api/v2/todo", statusWant: http.StatusOK, idsWant: []int64{1, 2, 3, 4, 5}},
		{name: "completed", path: "/api/v2/todo?isCompleted=true", statusWant: http.StatusOK, idsWant: []int64{2, 4}},
		{name: "pending", path: "/api/v2/todo?isCompleted=false", statusWant: http.StatusOK, idsWant: []int64{1, 3, 5}},
		{name: "v2.0 alias", path: "/api/v2.0/todo?isCompleted=true", statusWant: http.StatusOK, idsWant: []int64{2, 4}},
		{name: "invalid value", path: "/api/v2/todo?isCompleted=maybe", statusWant: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(api, http.MethodGet, tt.path, "", "")
			if rr.Code != tt.statusWant {
				t.Fatalf("want status code %v, got %v", tt.statusWant, rr.Code)
			}
			if tt.statusWant != http.StatusOK {
				var e ErrorResponse
				decode(t, rr, &e)
				if e.Error != "isCompleted must be true or false." {
					t.Errorf("unexpected error message %q", e.Error)
				}
				return
			}

			var items []storage.TodoItem
			decode(t, rr, &items)
			if len(items) != len(tt.idsWant) {
				t.Fatalf("want %d items, got %d", len(tt.idsWant), len(items))
			}
			for i, item := range items {
				if item.ID != tt.idsWant[i] {
					t.Errorf("want id %d at %d, got %d", tt.idsWant[i], i, item.ID)
				}
			}
		})
	}
}

func TestAPI_toggleTodoHandler(t *testing.T) {
	api, db := newTestAPI(t)
	seedTodos(t, db, 1)

	for i, want := range []bool{true, false} {
		rr := do(api, http.MethodPatch, "/api/v2/todo/1/toggle", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("toggle %d: want status code %v, got %v", i+1, http.StatusOK, rr.Code)
		}

		var got storage.TodoItem
		decode(t, rr, &got)
		if got.IsCompleted != want {
			t.Errorf("toggle %d: want isCompleted %v, got %v", i+1, want, got.IsCompleted)
		}
		if got.Title == nil || *got.Title != "task 1" {
			t.Errorf("toggle %d: want title kept, got %v", i+1, got.Title)
		}
	}

	rr := do(api, http.MethodPatch, "/api/v2.0/todo/1/toggle", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("want status code %v on v2.0 alias, got %v", http.StatusOK, rr.Code)
	}
}

func TestAPI_toggleTodoHandlerErrors(t *testing.T) {
	api, _ := newTestAPI(t)

	if rr := do(api, http.MethodPatch, "/api/v2/todo/3/toggle", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
	if rr := do(api, http.MethodPatch, "/api/v2/todo/x/toggle", "", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}
}

func TestAPI_cleanupHandler(t *testing.T) {
	api, db := newTestAPI(t)
	seedMixed(t, db, 5)

	rr := do(api, http.MethodDelete, "/api/v2/todo/cleanup", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v", http.StatusOK, rr.Code)
	}

	var got CleanupResponse
	decode(t, rr, &got)
	if got.DeletedCount != 2 {
		t.Errorf("want 2 deleted, got %d", got.DeletedCount)
	}

	items, _ := db.Todos(context.Background(), storage.TodoFilter{})
	if len(items) != 3 {
		t.Errorf("want 3 items left, got %d", len(items))
	}

	rr = do(api, http.MethodDelete, "/api/v2.0/todo/cleanup", "", "")
	decode(t, rr, &got)
	if got.DeletedCount != 0 {
		t.Errorf("want nothing left to delete, got %d", got.DeletedCount)
	}
}

func TestAPI_summaryHandler(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want SummaryResponse
	}{
		{name: "empty", n: 0, want: SummaryResponse{}},
		{name: "mixed", n: 5, want: SummaryResponse{TotalTasks: 5, CompletedTasks: 2, PendingTasks: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, db := newTestAPI(t)
			seedMixed(t, db, tt.n)

			rr := do(api, http.MethodGet, "/api/v2/todo/summary", "", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("want status code %v, got %v", http.StatusOK, rr.Code)
			}

			var got SummaryResponse
			decode(t, rr, &got)
			if got != tt.want {
				t.Errorf("want summary %+v, got %+v", tt.want, got)
			}
		})
	}
}
