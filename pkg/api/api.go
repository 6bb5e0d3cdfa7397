package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/storage"
)

// RequestLogsPath is the root of the request log routes. It also seeds the
// default list of paths the logging middleware skips.
const RequestLogsPath = "/api/requestlogs"

const (
	todoPath  = "/api/todo"
	maxBody   = 1 << 20
	pageParam = "page"
	sizeParam = "pageSize"

	defaultPage     = 1
	defaultPageSize = 10
)

var (
	loginPaths  = []string{"/api/v1/auth/login", "/api/v1.0/auth/login"}
	v2TodoPaths = []string{"/api/v2/todo", "/api/v2.0/todo"}
)

// LogPublisher receives every persisted request log, e.g. to ship it to Kafka.
type LogPublisher interface {
	Publish(entry storage.RequestLog, reqID string)
}

type Options struct {
	ServiceName string

	Todos    storage.Todos
	Logs     storage.RequestLogs
	Tokens   *auth.TokenService
	Verifier auth.Verifier

	// ExcludePrefixes lists path prefixes that are not written to the request
	// log. Nil means RequestLogsPath only.
	ExcludePrefixes    []string
	ProtectRequestLogs bool
	TrustProxyHeaders  bool

	Publisher LogPublisher
}

type API struct {
	ServiceName string

	todos    storage.Todos
	logs     storage.RequestLogs
	tokens   *auth.TokenService
	verifier auth.Verifier

	excluded          []string
	protectLogs       bool
	trustProxyHeaders bool
	publisher         LogPublisher

	r       *mux.Router
	handler http.Handler
	reg     *prometheus.Registry
	metrics *metrics
}

func New(opts Options) (*API, error) {
	switch {
	case opts.Todos == nil:
		return nil, errors.New("todo store is required")
	case opts.Logs == nil:
		return nil, errors.New("request log store is required")
	case opts.Tokens == nil:
		return nil, errors.New("token service is required")
	case opts.Verifier == nil:
		return nil, errors.New("credential verifier is required")
	}

	excluded := opts.ExcludePrefixes
	if excluded == nil {
		excluded = []string{RequestLogsPath}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := API{
		ServiceName:       opts.ServiceName,
		todos:             opts.Todos,
		logs:              opts.Logs,
		tokens:            opts.Tokens,
		verifier:          opts.Verifier,
		excluded:          excluded,
		protectLogs:       opts.ProtectRequestLogs,
		trustProxyHeaders: opts.TrustProxyHeaders,
		publisher:         opts.Publisher,
		r:                 mux.NewRouter(),
		reg:               reg,
		metrics:           newMetrics(reg),
	}
	api.endpoints()

	// The chain wraps the router instead of using Router.Use so that unmatched
	// routes are counted and logged as well.
	api.handler = api.requestIDMiddleware(
		api.metricsMiddleware(
			api.requestLogMiddleware(
				api.headerMiddleware(api.r))))

	return &api, nil
}

// Router returns the handler serving the whole API.
func (api *API) Router() http.Handler {
	return api.handler
}

// MetricsHandler serves the Prometheus metrics of this API instance.
func (api *API) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(api.reg, promhttp.HandlerOpts{Registry: api.reg})
}

func (api *API) endpoints() {
	for _, p := range loginPaths {
		api.r.HandleFunc(p, api.loginHandler).Methods(http.MethodPost)
	}

	api.r.HandleFunc(todoPath, api.todosHandler).Methods(http.MethodGet)
	api.r.HandleFunc(todoPath, api.createTodoHandler).Methods(http.MethodPost)
	api.r.HandleFunc(todoPath+"/paged", api.pagedTodosHandler).Methods(http.MethodGet)
	api.r.Handle(todoPath+"/{id}", api.requireAuth(api.todoHandler)).Methods(http.MethodGet)
	api.r.Handle(todoPath+"/{id}", api.requireAuth(api.replaceTodoHandler)).Methods(http.MethodPut)
	api.r.Handle(todoPath+"/{id}", api.requireAuth(api.patchTodoHandler)).Methods(http.MethodPatch)
	api.r.Handle(todoPath+"/{id}", api.requireAuth(api.deleteTodoHandler)).Methods(http.MethodDelete)

	for _, p := range v2TodoPaths {
		api.r.HandleFunc(p, api.filteredTodosHandler).Methods(http.MethodGet)
		api.r.HandleFunc(p+"/summary", api.summaryHandler).Methods(http.MethodGet)
		api.r.HandleFunc(p+"/cleanup", api.cleanupHandler).Methods(http.MethodDelete)
		api.r.HandleFunc(p+"/{id}/toggle", api.toggleTodoHandler).Methods(http.MethodPatch)
	}

	logsHandler := func(h http.HandlerFunc) http.Handler {
		if api.protectLogs {
			return api.requireAuth(h)
		}
		return h
	}
	api.r.Handle(RequestLogsPath, logsHandler(api.requestLogsHandler)).Methods(http.MethodGet)
	api.r.Handle(RequestLogsPath+"/paged", logsHandler(api.pagedRequestLogsHandler)).Methods(http.MethodGet)
	api.r.Handle(RequestLogsPath+"/{id}", logsHandler(api.requestLogHandler)).Methods(http.MethodGet)

	api.r.HandleFunc("/healthz", api.healthHandler).Methods(http.MethodGet)
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"}, "healthHandler", shorten(GetRequestID(r.Context())))
}

// writeJSON sends v with the given status. Encoding errors can only be logged
// since the header is already out.
func writeJSON(w http.ResponseWriter, status int, v any, handler, sID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[%s][%s] failed to encode response data: %v", handler, sID, err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		log.Errorf("[writeError] failed to encode error response %q: %v", msg, err)
	}
}

// writeStoreError maps storage errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, err error, handler, sID string) {
	switch {
	case errors.Is(err, storage.ErrTodoNotFound):
		http.Error(w, "Todo item not found", http.StatusNotFound)
		log.Debugf("[%s][%s] %v", handler, sID, err)
	case errors.Is(err, storage.ErrRequestLogNotFound):
		http.Error(w, "Request log not found", http.StatusNotFound)
		log.Debugf("[%s][%s] %v", handler, sID, err)
	case errors.Is(err, storage.ErrConflict):
		http.Error(w, "Todo item was modified by another request", http.StatusConflict)
		log.Infof("[%s][%s] %v", handler, sID, err)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] storage error: %v", handler, sID, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

var (
	errPageNotInt   = errors.New("Page and PageSize must be integers.")
	errPageNotValid = errors.New("Page and PageSize must be greater than 0.")
)

// parsePaging reads page and pageSize, defaulting to 1 and 10.
func parsePaging(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()
	page, size = defaultPage, defaultPageSize

	if v := q.Get(pageParam); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, errPageNotInt
		}
	}
	if v := q.Get(sizeParam); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			return 0, 0, errPageNotInt
		}
	}
	if page < 1 || size < 1 {
		return 0, 0, errPageNotValid
	}

	return page, size, nil
}

// pageExists reports whether page can be served for total items. The first
// page of an empty collection is always served.
func pageExists(page, totalPages, total int) bool {
	return page <= totalPages || (total == 0 && page == 1)
}

// GetRequestID extracts the request ID from the context.
// It returns the request ID as a string if present, otherwise returns an empty string.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// shorten truncates a string to 6 characters if it is longer than 6, appends '...' at the end,
// otherwise it returns the string unchanged.
func shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
