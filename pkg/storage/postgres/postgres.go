package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/no-abramov/todoapi/pkg/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS todo_items (
		id           BIGSERIAL PRIMARY KEY,
		title        TEXT,
		description  TEXT,
		created_date TIMESTAMPTZ NOT NULL,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		version      BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS request_logs (
		id           BIGSERIAL PRIMARY KEY,
		ip_address   TEXT NOT NULL,
		http_method  TEXT NOT NULL,
		path         TEXT NOT NULL,
		request_time TIMESTAMPTZ NOT NULL
	)`,
}

const todoColumns = `id, title, description, created_date, is_completed, version`

type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, conStr string) (*Store, error) {
	db, err := pgxpool.Connect(ctx, conStr)
	if err != nil {
		return nil, err
	}
	s := Store{
		db: db,
	}

	return &s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

// Init creates the tables if they do not exist yet.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func scanTodo(row pgx.Row) (item storage.TodoItem, err error) {
	err = row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.CreatedDate,
		&item.IsCompleted,
		&item.Version,
	)
	item.CreatedDate = item.CreatedDate.UTC()
	return
}

func collectTodos(rows pgx.Rows) ([]storage.TodoItem, error) {
	defer rows.Close()

	items := []storage.TodoItem{}
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Todos returns todo items ordered by ID, optionally restricted to one completion state.
func (s *Store) Todos(ctx context.Context, filter storage.TodoFilter) ([]storage.TodoItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+todoColumns+`
		FROM todo_items
		WHERE $1::BOOLEAN IS NULL OR is_completed = $1
		ORDER BY id
	`,
		filter.IsCompleted,
	)
	if err != nil {
		return nil, err
	}

	return collectTodos(rows)
}

// TodosPage returns the requested page of todo items ordered by ID together with
// the total number of stored items.
func (s *Store) TodosPage(ctx context.Context, page, limit int) (items []storage.TodoItem, total int, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+todoColumns+`
		FROM todo_items
		ORDER BY id
		LIMIT $1 OFFSET $2
	`,
		limit,
		storage.Offset(page, limit),
	)
	if err != nil {
		return nil, 0, err
	}

	items, err = collectTodos(rows)
	if err != nil {
		return nil, 0, err
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(id) FROM todo_items`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// Todo retrieves a todo item by its ID.
func (s *Store) Todo(ctx context.Context, id int64) (storage.TodoItem, error) {
	item, err := scanTodo(s.db.QueryRow(ctx, `
		SELECT `+todoColumns+`
		FROM todo_items
		WHERE id = $1
	`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = storage.ErrTodoNotFound
		}
		return storage.TodoItem{}, err
	}

	return item, nil
}

// AddTodo inserts a new todo item. ID comes from the sequence, the creation
// date is set here.
func (s *Store) AddTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	return scanTodo(s.db.QueryRow(ctx, `
		INSERT INTO todo_items (title, description, created_date, is_completed, version)
		VALUES ($1, $2, $3, $4, 1)
		RETURNING `+todoColumns,
		item.Title,
		item.Description,
		storage.Now(),
		item.IsCompleted,
	))
}

// UpdateTodo overwrites the mutable fields of a todo item and bumps its version.
// With a non-zero item.Version the row is only touched if its version still matches;
// a miss is then told apart as ErrConflict (row present) or ErrTodoNotFound.
func (s *Store) UpdateTodo(ctx context.Context, item storage.TodoItem) (storage.TodoItem, error) {
	updated, err := scanTodo(s.db.QueryRow(ctx, `
		UPDATE todo_items
		SET title = $2, description = $3, is_completed = $4, version = version + 1
		WHERE id = $1 AND ($5::BIGINT = 0 OR version = $5::BIGINT)
		RETURNING `+todoColumns,
		item.ID,
		item.Title,
		item.Description,
		item.IsCompleted,
		item.Version,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storage.TodoItem{}, err
	}

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM todo_items WHERE id = $1)`, item.ID).Scan(&exists)
	if err != nil {
		return storage.TodoItem{}, err
	}
	if exists {
		return storage.TodoItem{}, storage.ErrConflict
	}

	return storage.TodoItem{}, storage.ErrTodoNotFound
}

func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM todo_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTodoNotFound
	}

	return nil
}

func (s *Store) DeleteCompletedTodos(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM todo_items WHERE is_completed`)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

func (s *Store) CountTodos(ctx context.Context) (total, completed int, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(id), COUNT(id) FILTER (WHERE is_completed)
		FROM todo_items
	`).Scan(&total, &completed)

	return
}

func scanRequestLog(row pgx.Row) (entry storage.RequestLog, err error) {
	err = row.Scan(
		&entry.ID,
		&entry.IPAddress,
		&entry.HTTPMethod,
		&entry.Path,
		&entry.RequestTime,
	)
	entry.RequestTime = entry.RequestTime.UTC()
	return
}

func collectRequestLogs(rows pgx.Rows) ([]storage.RequestLog, error) {
	defer rows.Close()

	logs := []storage.RequestLog{}
	for rows.Next() {
		entry, err := scanRequestLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) AddRequestLog(ctx context.Context, entry storage.RequestLog) (storage.RequestLog, error) {
	if entry.RequestTime.IsZero() {
		entry.RequestTime = storage.Now()
	}

	return scanRequestLog(s.db.QueryRow(ctx, `
		INSERT INTO request_logs (ip_address, http_method, path, request_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ip_address, http_method, path, request_time
	`,
		entry.IPAddress,
		entry.HTTPMethod,
		entry.Path,
		entry.RequestTime.UTC(),
	))
}

func (s *Store) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ip_address, http_method, path, request_time
		FROM request_logs
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}

	return collectRequestLogs(rows)
}

func (s *Store) RequestLogsPage(ctx context.Context, page, limit int) (logs []storage.RequestLog, total int, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ip_address, http_method, path, request_time
		FROM request_logs
		ORDER BY id
		LIMIT $1 OFFSET $2
	`,
		limit,
		storage.Offset(page, limit),
	)
	if err != nil {
		return nil, 0, err
	}

	logs, err = collectRequestLogs(rows)
	if err != nil {
		return nil, 0, err
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(id) FROM request_logs`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (s *Store) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	entry, err := scanRequestLog(s.db.QueryRow(ctx, `
		SELECT id, ip_address, http_method, path, request_time
		FROM request_logs
		WHERE id = $1
	`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = storage.ErrRequestLogNotFound
		}
		return storage.RequestLog{}, err
	}

	return entry, nil
}
