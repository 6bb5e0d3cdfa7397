package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid"

	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/storage"
	"github.com/no-abramov/todoapi/pkg/storage/memdb"
)

// Dummy handler to check context and header
func makeTestHandler(t *testing.T, wantID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gotID, _ := r.Context().Value(RequestIDKey).(string)
		if wantID != "" && gotID != wantID {
			t.Errorf("want request id in context %q, got %q", wantID, gotID)
		}
		respID := w.Header().Get("X-Request-Id")
		if wantID != "" && respID != wantID {
			t.Errorf("want X-Request-Id header %q, got %q", wantID, respID)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}
}

func Test_requestIDMiddlewareHeaderExists(t *testing.T) {
	api := &API{}
	wantID := "test-req-id-123"
	handler := api.requestIDMiddleware(makeTestHandler(t, wantID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", wantID)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("want status code %v, got %v", http.StatusOK, rr.Code)
	}
	got := rr.Header().Get("X-Request-Id")
	if got != wantID {
		t.Errorf("want X-Request-Id header %q, got %q", wantID, got)
	}
}

func Test_requestIDMiddlewareHeaderNotExists(t *testing.T) {
	api := &API{}
	handler := api.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID := GetRequestID(r.Context())
		if gotID == "" {
			t.Error("want non-empty request id in context when header is missing")
		}
		respID := w.Header().Get("X-Request-Id")
		if _, err := uuid.FromString(respID); err != nil {
			t.Errorf("want valid UUID for generated request id, got %q", respID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("want status code %v, got %v", http.StatusOK, rr.Code)
	}
}

func Test_headerMiddlewarePreflight(t *testing.T) {
	api, db := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/todo", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("want status code %v, got %v", http.StatusNoContent, rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("want CORS origin %q, got %q", "*", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
		t.Errorf("want PATCH among allowed methods, got %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}

	logs, _ := db.RequestLogs(context.Background())
	if len(logs) != 1 {
		t.Fatalf("want preflight logged once, got %d logs", len(logs))
	}
	if logs[0].HTTPMethod != http.MethodOptions || logs[0].Path != "/api/todo" {
		t.Errorf("want OPTIONS /api/todo logged, got %s %s", logs[0].HTTPMethod, logs[0].Path)
	}
}

func TestAPI_isExcluded(t *testing.T) {
	api := &API{excluded: []string{"/api/requestlogs", "/internal/"}}

	tests := []struct {
		path string
		want bool
	}{
		{path: "/api/requestlogs", want: true},
		{path: "/api/requestlogs/", want: true},
		{path: "/api/requestlogs/5", want: true},
		{path: "/api/requestlogs/paged", want: true},
		{path: "/API/RequestLogs", want: true},
		{path: "/Api/REQUESTLOGS/1", want: true},
		{path: "/internal", want: true},
		{path: "/internal/debug", want: true},
		{path: "/api/requestlogsx", want: false},
		{path: "/api/request", want: false},
		{path: "/api/todo", want: false},
		{path: "/", want: false},
		{path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := api.isExcluded(tt.path); got != tt.want {
				t.Errorf("isExcluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func Test_clientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trust      bool
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "ipv6 with port", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "no port", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
		{name: "empty", remoteAddr: "", want: "Unknown"},
		{name: "forwarded ignored", remoteAddr: "10.0.0.1:80", forwarded: "203.0.113.7", want: "10.0.0.1"},
		{name: "forwarded trusted", remoteAddr: "10.0.0.1:80", forwarded: "203.0.113.7, 10.0.0.2", trust: true, want: "203.0.113.7"},
		{name: "trusted but absent", remoteAddr: "10.0.0.1:80", trust: true, want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req, tt.trust); got != tt.want {
				t.Errorf("want client IP %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAPI_requestLogMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		wantLogs int
	}{
		{name: "todo list", method: http.MethodGet, path: "/api/todo", wantLogs: 1},
		{name: "gated route without token", method: http.MethodDelete, path: "/api/todo/1", wantLogs: 1},
		{name: "v2 summary", method: http.MethodGet, path: "/api/v2/todo/summary", wantLogs: 1},
		{name: "unmatched route", method: http.MethodGet, path: "/nowhere", wantLogs: 1},
		{name: "health", method: http.MethodGet, path: "/healthz", wantLogs: 1},
		{name: "log list", method: http.MethodGet, path: "/api/requestlogs", wantLogs: 0},
		{name: "log by id", method: http.MethodGet, path: "/api/requestlogs/1", wantLogs: 0},
		{name: "log page", method: http.MethodGet, path: "/api/requestlogs/paged", wantLogs: 0},
		{name: "log list other case", method: http.MethodGet, path: "/API/REQUESTLOGS", wantLogs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, db := newTestAPI(t)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.0.2.10:5555"
			api.Router().ServeHTTP(httptest.NewRecorder(), req)

			logs, err := db.RequestLogs(context.Background())
			if err != nil {
				t.Fatalf("RequestLogs returned error: %v", err)
			}
			if len(logs) != tt.wantLogs {
				t.Fatalf("want %d request logs, got %d", tt.wantLogs, len(logs))
			}
			if tt.wantLogs == 0 {
				return
			}

			got := logs[0]
			if got.HTTPMethod != tt.method || got.Path != tt.path {
				t.Errorf("want log %s %s, got %s %s", tt.method, tt.path, got.HTTPMethod, got.Path)
			}
			if got.IPAddress != "192.0.2.10" {
				t.Errorf("want ip %q, got %q", "192.0.2.10", got.IPAddress)
			}
			if got.RequestTime.IsZero() {
				t.Error("want request time set")
			}
		})
	}
}

func TestAPI_requestLogMiddlewareCustomExclusions(t *testing.T) {
	api, db := newTestAPI(t, func(o *Options) {
		o.ExcludePrefixes = []string{"/healthz"}
	})

	do(api, http.MethodGet, "/healthz", "", "")
	do(api, http.MethodGet, "/api/requestlogs", "", "")

	logs, _ := db.RequestLogs(context.Background())
	if len(logs) != 1 || logs[0].Path != "/api/requestlogs" {
		t.Errorf("want only the request log listing logged, got %+v", logs)
	}
}

// failingLogs serves reads from db and fails every write.
type failingLogs struct {
	db *memdb.Store
}

func (failingLogs) AddRequestLog(context.Context, storage.RequestLog) (storage.RequestLog, error) {
	return storage.RequestLog{}, errors.New("disk full")
}

func (l failingLogs) RequestLogs(ctx context.Context) ([]storage.RequestLog, error) {
	return l.db.RequestLogs(ctx)
}

func (l failingLogs) RequestLogsPage(ctx context.Context, page, limit int) ([]storage.RequestLog, int, error) {
	return l.db.RequestLogsPage(ctx, page, limit)
}

func (l failingLogs) RequestLog(ctx context.Context, id int64) (storage.RequestLog, error) {
	return l.db.RequestLog(ctx, id)
}

func TestAPI_requestLogMiddlewareStoreFailure(t *testing.T) {
	api, db := newTestAPI(t, func(o *Options) {
		o.Logs = failingLogs{db: memdb.New()}
	})

	rr := do(api, http.MethodPost, "/api/todo", `{"title":"never stored"}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("want status code %v, got %v", http.StatusInternalServerError, rr.Code)
	}

	items, _ := db.Todos(context.Background(), storage.TodoFilter{})
	if len(items) != 0 {
		t.Errorf("want request not forwarded, got %d items", len(items))
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []storage.RequestLog
	reqIDs  []string
}

func (p *recordingPublisher) Publish(entry storage.RequestLog, reqID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	p.reqIDs = append(p.reqIDs, reqID)
}

func TestAPI_requestLogMiddlewarePublishes(t *testing.T) {
	pub := &recordingPublisher{}
	api, _ := newTestAPI(t, func(o *Options) { o.Publisher = pub })

	req := httptest.NewRequest(http.MethodGet, "/api/todo", nil)
	req.Header.Set("X-Request-Id", "req-42")
	api.Router().ServeHTTP(httptest.NewRecorder(), req)
	do(api, http.MethodGet, "/api/requestlogs", "", "")

	if len(pub.entries) != 1 {
		t.Fatalf("want 1 published entry, got %d", len(pub.entries))
	}
	if pub.entries[0].ID != 1 || pub.entries[0].Path != "/api/todo" {
		t.Errorf("unexpected published entry %+v", pub.entries[0])
	}
	if pub.reqIDs[0] != "req-42" {
		t.Errorf("want request id %q, got %q", "req-42", pub.reqIDs[0])
	}
}

func TestAPI_requireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	valid := login(t, api)

	other, err := auth.NewTokenService(auth.Config{
		Key:             strings.Repeat("x", auth.MinKeyLen),
		Issuer:          "todoapi",
		Audience:        "todoapi-clients",
		LifetimeMinutes: 60,
	})
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.Generate("admin")
	if err != nil {
		t.Fatal(err)
	}

	var gotClaims *auth.Claims
	handler := api.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		statusWant int
	}{
		{name: "no header", header: "", statusWant: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic YWRtaW46cGFzc3dvcmQ=", statusWant: http.StatusUnauthorized},
		{name: "bearer without token", header: "Bearer ", statusWant: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", statusWant: http.StatusUnauthorized},
		{name: "token from another key", header: "Bearer " + forged, statusWant: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + valid, statusWant: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + valid, statusWant: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClaims = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.statusWant {
				t.Fatalf("want status code %v, got %v", tt.statusWant, rr.Code)
			}
			if tt.statusWant == http.StatusUnauthorized {
				if !strings.HasPrefix(rr.Header().Get("WWW-Authenticate"), "Bearer") {
					t.Errorf("want WWW-Authenticate Bearer challenge, got %q", rr.Header().Get("WWW-Authenticate"))
				}
				return
			}
			if gotClaims == nil || gotClaims.Name != "admin" {
				t.Errorf("want claims for admin in context, got %+v", gotClaims)
			}
		})
	}
}
