package mongo

import (
	"context"
	"os"
	"time"

	"github.com/no-abramov/todoapi/pkg/storage"
)

func testConf() *Config {
	port := os.Getenv("MONGO_PORT")
	if port == "" {
		port = "27017"
	}

	return &Config{
		Host:           "localhost",
		Port:           port,
		DBName:         "todo_test",
		ConnectTimeout: 2 * time.Second,
	}
}

// storageConnect establishes a connection to the local test Mongo instance.
func storageConnect(ctx context.Context) (*Storage, error) {
	db, err := New(ctx, testConf())
	if err != nil {
		return nil, storage.ErrConnectDB
	}

	if err := db.Ping(ctx); err != nil {
		db.Close(ctx)
		return nil, storage.ErrDBNotResponding
	}

	return db, nil
}

// restoreDB drops the collections written by the store.
// WARNING: Use only in tests to avoid data loss.
func restoreDB(ctx context.Context, db *Storage) error {
	for _, name := range []string{logsCollection, countersCollection} {
		if err := db.client.Database(db.dbName).Collection(name).Drop(ctx); err != nil {
			return err
		}
	}
	return nil
}
