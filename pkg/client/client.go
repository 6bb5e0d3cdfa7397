// Package client is a typed HTTP client for the todo API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/no-abramov/todoapi/pkg/api"
	"github.com/no-abramov/todoapi/pkg/storage"
)

const timeout = 5 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Msg)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	c := Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}

	return &c
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Msg: errorMessage(b)}
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// errorMessage extracts {"error": ...} bodies and falls back to the raw text.
func errorMessage(b []byte) string {
	var e api.ErrorResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, method, path, nil, "", out)
	}

	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(b), "application/json", out)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp api.TokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", api.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}

	c.token = resp.Token
	return resp.Token, nil
}

func (c *Client) Todos(ctx context.Context) ([]storage.TodoItem, error) {
	var items []storage.TodoItem
	err := c.doJSON(ctx, http.MethodGet, "/api/todo", nil, &items)
	return items, err
}

func (c *Client) Todo(ctx context.Context, id int64) (storage.TodoItem, error) {
	var item storage.TodoItem
	err := c.doJSON(ctx, http.MethodGet, todoPath(id), nil, &item)
	return item, err
}

func (c *Client) TodosPage(ctx context.Context, page, pageSize int) (api.TodoPage, error) {
	var p api.TodoPage
	err := c.doJSON(ctx, http.MethodGet, "/api/todo/paged?"+pageQuery(page, pageSize), nil, &p)
	return p, err
}

func (c *Client) CreateTodo(ctx context.Context, in api.TodoInput) (storage.TodoItem, error) {
	var item storage.TodoItem
	err := c.doJSON(ctx, http.MethodPost, "/api/todo", in, &item)
	return item, err
}

// ReplaceTodo overwrites every mutable field of item in.ID.
func (c *Client) ReplaceTodo(ctx context.Context, in api.TodoInput) error {
	return c.doJSON(ctx, http.MethodPut, todoPath(in.ID), in, nil)
}

// PatchOp is one RFC 6902 operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value"`
}

func (c *Client) PatchTodo(ctx context.Context, id int64, ops []PatchOp) error {
	b, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, todoPath(id), bytes.NewReader(b), "application/json-patch+json", nil)
}

func (c *Client) DeleteTodo(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, todoPath(id), nil, nil)
}

// FilteredTodos lists items through the v2 API. A nil completed lists all.
func (c *Client) FilteredTodos(ctx context.Context, completed *bool) ([]storage.TodoItem, error) {
	path := "/api/v2/todo"
	if completed != nil {
		path += "?isCompleted=" + strconv.FormatBool(*completed)
	}

	var items []storage.TodoItem
	err := c.doJSON(ctx, http.MethodGet, path, nil, &items)
	return items, err
}

func (c *Client) ToggleTodo(ctx context.Context, id int64) (storage.TodoItem, error) {
	var item storage.TodoItem
	err := c.doJSON(ctx, http.MethodPatch, "/api/v2/todo/"+strconv.FormatInt(id, 10)+"/toggle", nil, &item)
	return item, err
}

func (c *Client) Cleanup(ctx context.Context) (int, error) {
	var resp api.CleanupResponse
	err := c.doJSON(ctx, http.MethodDelete, "/api/v2/todo/cleanup", nil, &resp)
	return resp.DeletedCount, err
}

func (c *Client) Summary(ctx context.Context) (api.SummaryResponse, error) {
	var resp api.SummaryResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v2/todo/summary", nil, &resp)
	return resp, err
}

func (c *Client) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	var logs []storage.RequestLog
	err := c.doJSON(ctx, http.MethodGet, api.RequestLogsPath, nil, &logs)
	return logs, err
}

func (c *Client) RequestLogsPage(ctx context.Context, page, pageSize int) (api.RequestLogPage, error) {
	var p api.RequestLogPage
	err := c.doJSON(ctx, http.MethodGet, api.RequestLogsPath+"/paged?"+pageQuery(page, pageSize), nil, &p)
	return p, err
}

func (c *Client) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	var entry storage.RequestLog
	err := c.doJSON(ctx, http.MethodGet, api.RequestLogsPath+"/"+strconv.FormatInt(id, 10), nil, &entry)
	return entry, err
}

func todoPath(id int64) string {
	return "/api/todo/" + strconv.FormatInt(id, 10)
}

func pageQuery(page, pageSize int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return q.Encode()
}
