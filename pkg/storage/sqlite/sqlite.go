// Package sqlite keeps todo items and request logs in an embedded SQLite
// database through gorm.
package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/no-abramov/todoapi/pkg/storage"
)

type todoRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Title       *string   `gorm:"column:title"`
	Description *string   `gorm:"column:description"`
	CreatedDate time.Time `gorm:"column:created_date;not null"`
	IsCompleted bool      `gorm:"column:is_completed;not null;index"`
	Version     int64     `gorm:"column:version;not null;default:1"`
}

func (todoRecord) TableName() string { return "todo_items" }

func (r todoRecord) item() storage.TodoItem {
	return storage.TodoItem{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		CreatedDate: r.CreatedDate.UTC(),
		IsCompleted: r.IsCompleted,
		Version:     r.Version,
	}
}

type requestLogRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	IPAddress   string    `gorm:"column:ip_address;not null"`
	HTTPMethod  string    `gorm:"column:http_method;not null"`
	Path        string    `gorm:"column:path;not null"`
	RequestTime time.Time `gorm:"column:request_time;not null;index"`
}

func (requestLogRecord) TableName() string { return "request_logs" }

func (r requestLogRecord) entry() storage.RequestLog {
	return storage.RequestLog{
		ID:          r.ID,
		IPAddress:   r.IPAddress,
		HTTPMethod:  r.HTTPMethod,
		Path:        r.Path,
		RequestTime: r.RequestTime.UTC(),
	}
}

type Store struct {
	db *gorm.DB
}

// New opens the database file at dsn. ":memory:" gives a private in-memory
// database that lives as long as the Store.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: storage.Now,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; one connection also keeps ":memory:" a single database.
	sqlDB.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Init creates or migrates the tables.
func (s *Store) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&todoRecord{}, &requestLogRecord{})
}

func (s *Store) Todos(ctx context.Context, filter storage.TodoFilter) ([]storage.TodoItem, error) {
	q := s.db.WithContext(ctx).Order("id")
	if filter.IsCompleted != nil {
		q = q.Where("is_completed = ?", *filter.IsCompleted)
	}

	var recs []todoRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	return todoItems(recs), nil
}

func (s *Store) TodosPage(ctx context.Context, page, limit int) (items []storage.TodoItem, total int, err error) {
	var recs []todoRecord
	err = s.db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset(storage.Offset(page, limit)).
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&todoRecord{}).Count(&n).Error; err != nil {
		return nil, 0, err
	}

	return todoItems(recs), int(n), nil
}

func (s *Store) Todo(ctx context.Context, id int64) (storage.TodoItem, error) {
	var rec todoRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = storage.ErrTodoNotFound
		}
		return storage.TodoItem{}, err
	}

	return rec.item(), nil
}

func (s *Store) AddTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	rec := todoRecord{
		Title:       item.Title,
		Description: item.Description,
		CreatedDate: storage.Now(),
		IsCompleted: item.IsCompleted,
		Version:     1,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storage.TodoItem{}, err
	}

	return rec.item(), nil
}

// UpdateTodo overwrites the mutable fields and bumps the version. A non-zero
// item.Version restricts the write to that version.
func (s *Store) UpdateTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	q := s.db.WithContext(ctx).Model(&todoRecord{}).Where("id = ?", item.ID)
	if item.Version != 0 {
		q = q.Where("version = ?", item.Version)
	}

	res := q.Updates(map[string]any{
		"title":        item.Title,
		"description":  item.Description,
		"is_completed": item.IsCompleted,
		"version":      gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return storage.TodoItem{}, res.Error
	}

	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&todoRecord{}).Where("id = ?", item.ID).Count(&n).Error; err != nil {
			return storage.TodoItem{}, err
		}
		if n > 0 {
			return storage.TodoItem{}, storage.ErrConflict
		}
		return storage.TodoItem{}, storage.ErrTodoNotFound
	}

	return s.Todo(ctx, item.ID)
}

func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&todoRecord{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrTodoNotFound
	}

	return nil
}

func (s *Store) DeleteCompletedTodos(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Where("is_completed = ?", true).Delete(&todoRecord{})
	if res.Error != nil {
		return 0, res.Error
	}

	return int(res.RowsAffected), nil
}

func (s *Store) CountTodos(ctx context.Context) (total, completed int, err error) {
	var row struct {
		Total     int64
		Completed int64
	}
	err = s.db.WithContext(ctx).
		Model(&todoRecord{}).
		Select("COUNT(id) AS total, COALESCE(SUM(CASE WHEN is_completed THEN 1 ELSE 0 END), 0) AS completed").
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}

	return int(row.Total), int(row.Completed), nil
}

func (s *Store) AddRequestLog(ctx context.Context, entry storage.RequestLog) (storage.RequestLog, error) {
	if entry.RequestTime.IsZero() {
		entry.RequestTime = storage.Now()
	}

	rec := requestLogRecord{
		IPAddress:   entry.IPAddress,
		HTTPMethod:  entry.HTTPMethod,
		Path:        entry.Path,
		RequestTime: entry.RequestTime.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storage.RequestLog{}, err
	}

	return rec.entry(), nil
}

func (s *Store) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	var recs []requestLogRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}

	return requestLogs(recs), nil
}

func (s *Store) RequestLogsPage(ctx context.Context, page, limit int) (logs []storage.RequestLog, total int, err error) {
	var recs []requestLogRecord
	err = s.db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset(storage.Offset(page, limit)).
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&requestLogRecord{}).Count(&n).Error; err != nil {
		return nil, 0, err
	}

	return requestLogs(recs), int(n), nil
}

func (s *Store) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	var rec requestLogRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = storage.ErrRequestLogNotFound
		}
		return storage.RequestLog{}, err
	}

	return rec.entry(), nil
}

func todoItems(recs []todoRecord) []storage.TodoItem {
	items := make([]storage.TodoItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, r.item())
	}
	return items
}

func requestLogs(recs []requestLogRecord) []storage.RequestLog {
	logs := make([]storage.RequestLog, 0, len(recs))
	for _, r := range recs {
		logs = append(logs, r.entry())
	}
	return logs
}
