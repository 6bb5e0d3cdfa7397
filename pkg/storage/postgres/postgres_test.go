package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/storage"
	"github.com/no-abramov/todoapi/pkg/storage/storagetest"
)

const defaultPostgresPass = "some_pass"
const defaultPostgresPort = "5432"

func postgresConf() Config {
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" {
		pass = defaultPostgresPass
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = defaultPostgresPort
	}

	conf := Config{
		User:     "postgres",
		Password: pass,
		Host:     "localhost",
		Port:     port,
		DBName:   "todo",
	}

	return conf
}

func storageConnect() (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conf := postgresConf()
	db, err := New(ctx, conf.ConString())
	if err != nil {
		return nil, storage.ErrConnectDB
	}

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, storage.ErrDBNotResponding
	}

	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// truncate restores the original state of DB for further testing.
func truncate(db *Store) error {
	_, err := db.db.Exec(context.Background(), "TRUNCATE TABLE todo_items, request_logs RESTART IDENTITY")
	return err
}

// newTestStore connects to the local database and skips the test when it is not available.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := storageConnect()
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	if err := truncate(db); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := truncate(db); err != nil {
			t.Error(err)
		}
		db.Close()
	})

	return db
}

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func TestStore_Todos(t *testing.T) {
	storagetest.TestTodos(t, func(t *testing.T) storage.Todos { return newTestStore(t) })
}

func TestStore_RequestLogs(t *testing.T) {
	storagetest.TestRequestLogs(t, func(t *testing.T) storage.RequestLogs { return newTestStore(t) })
}

func TestStore_InitIdempotent(t *testing.T) {
	db := newTestStore(t)

	if err := db.Init(context.Background()); err != nil {
		t.Errorf("second Init returned error: %v", err)
	}
}
