package api

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/storage"
)

func (api *API) filteredTodosHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	var filter storage.TodoFilter
	if v := r.URL.Query().Get("isCompleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "isCompleted must be true or false.")
			log.Debugf("[filteredTodosHandler][%s] bad isCompleted value %q", sID, v)
			return
		}
		filter.IsCompleted = &b
	}

	items, err := api.todos.Todos(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err, "filteredTodosHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, items, "filteredTodosHandler", sID)
	log.Debugf("[filteredTodosHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}

// toggleTodoHandler flips isCompleted. The write is conditional on the version
// that was read, so two concurrent toggles cannot cancel each other silently.
func (api *API) toggleTodoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[toggleTodoHandler][%s] failed to parse todo ID: %v", sID, err)
		return
	}

	item, err := api.todos.Todo(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "toggleTodoHandler", sID)
		return
	}

	item.IsCompleted = !item.IsCompleted
	updated, err := api.todos.UpdateTodo(r.Context(), item)
	if err != nil {
		writeStoreError(w, err, "toggleTodoHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, updated, "toggleTodoHandler", sID)
	log.Debugf("[toggleTodoHandler][%s] todo item %d completed=%v", sID, id, updated.IsCompleted)
}

func (api *API) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	n, err := api.todos.DeleteCompletedTodos(r.Context())
	if err != nil {
		writeStoreError(w, err, "cleanupHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{DeletedCount: n}, "cleanupHandler", sID)
	log.Infof("[cleanupHandler][%s] %d completed todo items deleted", sID, n)
}

func (api *API) summaryHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	total, completed, err := api.todos.CountTodos(r.Context())
	if err != nil {
		writeStoreError(w, err, "summaryHandler", sID)
		return
	}

	resp := SummaryResponse{
		TotalTasks:     total,
		CompletedTasks: completed,
		PendingTasks:   total - completed,
	}
	writeJSON(w, http.StatusOK, resp, "summaryHandler", sID)
}
