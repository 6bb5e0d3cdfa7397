package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/storage"
	"github.com/no-abramov/todoapi/pkg/storage/storagetest"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func newTestStore(t *testing.T, dsn string) *Store {
	t.Helper()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("unable to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("unable to create schema: %v", err)
	}

	return db
}

func TestStore_Todos(t *testing.T) {
	storagetest.TestTodos(t, func(t *testing.T) storage.Todos { return newTestStore(t, ":memory:") })
}

func TestStore_RequestLogs(t *testing.T) {
	storagetest.TestRequestLogs(t, func(t *testing.T) storage.RequestLogs { return newTestStore(t, ":memory:") })
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "todo.db")
	ctx := context.Background()

	db, err := New(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Init(ctx); err != nil {
		t.Fatal(err)
	}
	title := "survive restart"
	added, err := db.AddTodo(ctx, storage.TodoItem{Title: &title})
	if err != nil {
		t.Fatalf("AddTodo returned error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db = newTestStore(t, dsn)
	got, err := db.Todo(ctx, added.ID)
	if err != nil {
		t.Fatalf("unexpected error retrieving todo: %v", err)
	}
	if got.Title == nil || *got.Title != title {
		t.Errorf("want title %q, got %v", title, got.Title)
	}
	if !got.CreatedDate.Equal(added.CreatedDate) {
		t.Errorf("want creation date %v, got %v", added.CreatedDate, got.CreatedDate)
	}
}

func TestStore_Ping(t *testing.T) {
	db := newTestStore(t, ":memory:")
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping returned error: %v", err)
	}
}
