// Package mongo keeps request logs in MongoDB. Todo items are not stored here.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/no-abramov/todoapi/pkg/storage"
)

const (
	logsCollection     = "request_logs"
	countersCollection = "counters"
)

type requestLogDoc struct {
	ID          int64     `bson:"_id"`
	IPAddress   string    `bson:"ip_address"`
	HTTPMethod  string    `bson:"http_method"`
	Path        string    `bson:"path"`
	RequestTime time.Time `bson:"request_time"`
}

func (d requestLogDoc) entry() storage.RequestLog {
	return storage.RequestLog{
		ID:          d.ID,
		IPAddress:   d.IPAddress,
		HTTPMethod:  d.HTTPMethod,
		Path:        d.Path,
		RequestTime: d.RequestTime.UTC(),
	}
}

type Storage struct {
	client *mongo.Client
	dbName string
}

func New(ctx context.Context, conf *Config) (*Storage, error) {
	client, err := mongo.Connect(ctx, conf.Options())
	if err != nil {
		return nil, err
	}

	s := Storage{client: client, dbName: conf.DBName}

	return &s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Init creates the request log collection if it does not exist yet.
func (s *Storage) Init(ctx context.Context) error {
	return s.createCollection(ctx, logsCollection)
}

func (s *Storage) logs() *mongo.Collection {
	return s.client.Database(s.dbName).Collection(logsCollection)
}

// nextID atomically increments the counter named after the collection.
func (s *Storage) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.client.Database(s.dbName).Collection(countersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": 1}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}

	return counter.Seq, nil
}

// AddRequestLog appends an entry. BSON dates keep milliseconds, so the stored
// time is truncated to that precision and returned as stored.
func (s *Storage) AddRequestLog(ctx context.Context, entry storage.RequestLog) (storage.RequestLog, error) {
	if entry.RequestTime.IsZero() {
		entry.RequestTime = storage.Now()
	}

	id, err := s.nextID(ctx, logsCollection)
	if err != nil {
		return storage.RequestLog{}, err
	}

	doc := requestLogDoc{
		ID:          id,
		IPAddress:   entry.IPAddress,
		HTTPMethod:  entry.HTTPMethod,
		Path:        entry.Path,
		RequestTime: entry.RequestTime.UTC().Truncate(time.Millisecond),
	}
	if _, err := s.logs().InsertOne(ctx, doc); err != nil {
		return storage.RequestLog{}, err
	}

	return doc.entry(), nil
}

func (s *Storage) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return s.find(ctx, opts)
}

func (s *Storage) RequestLogsPage(ctx context.Context, page, limit int) (logs []storage.RequestLog, total int, err error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(storage.Offset(page, limit))).
		SetLimit(int64(limit))

	logs, err = s.find(ctx, opts)
	if err != nil {
		return nil, 0, err
	}

	n, err := s.logs().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	return logs, int(n), nil
}

func (s *Storage) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	var doc requestLogDoc
	err := s.logs().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = storage.ErrRequestLogNotFound
		}
		return storage.RequestLog{}, err
	}

	return doc.entry(), nil
}

func (s *Storage) find(ctx context.Context, opts *options.FindOptions) ([]storage.RequestLog, error) {
	cur, err := s.logs().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var docs []requestLogDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	logs := make([]storage.RequestLog, 0, len(docs))
	for _, d := range docs {
		logs = append(logs, d.entry())
	}

	return logs, nil
}

// createCollection creates a collection with the given name in the database if it doesn't already exist.
func (s *Storage) createCollection(ctx context.Context, collName string) error {
	collExists, err := collectionExists(ctx, s.client.Database(s.dbName), collName)
	if err != nil {
		return err
	}

	if !collExists {
		err := s.client.Database(s.dbName).CreateCollection(ctx, collName)
		if err != nil {
			return err
		}
	}

	return nil
}

func collectionExists(ctx context.Context, db *mongo.Database, collName string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return false, fmt.Errorf("failed to list collection names: %w", err)
	}

	for _, name := range names {
		if name == collName {
			return true, nil
		}
	}

	return false, nil
}
