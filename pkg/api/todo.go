package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/patch"
	"github.com/no-abramov/todoapi/pkg/storage"
)

func (api *API) todosHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	items, err := api.todos.Todos(r.Context(), storage.TodoFilter{})
	if err != nil {
		writeStoreError(w, err, "todosHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, items, "todosHandler", sID)
	log.Debugf("[todosHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}

func (api *API) todoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[todoHandler][%s] failed to parse todo ID: %v", sID, err)
		return
	}

	item, err := api.todos.Todo(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "todoHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, item, "todoHandler", sID)
	log.Debugf("[todoHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}

func decodeTodo(r *http.Request, w http.ResponseWriter) (TodoInput, error) {
	var in TodoInput
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in)
	return in, err
}

func (api *API) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	in, err := decodeTodo(r, w)
	if err != nil {
		http.Error(w, "Malformed todo item", http.StatusBadRequest)
		log.Debugf("[createTodoHandler][%s] failed to decode request body: %v", sID, err)
		return
	}

	item, err := api.todos.AddTodo(r.Context(), storage.TodoItem{
		Title:       in.Title,
		Description: in.Description,
		IsCompleted: in.IsCompleted,
	})
	if err != nil {
		writeStoreError(w, err, "createTodoHandler", sID)
		return
	}

	w.Header().Set("Location", todoPath+"/"+strconv.FormatInt(item.ID, 10))
	writeJSON(w, http.StatusCreated, item, "createTodoHandler", sID)
	log.Debugf("[createTodoHandler][%s] todo item %d created", sID, item.ID)
}

// replaceTodoHandler overwrites every mutable field without a version check.
func (api *API) replaceTodoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[replaceTodoHandler][%s] failed to parse todo ID: %v", sID, err)
		return
	}

	in, err := decodeTodo(r, w)
	if err != nil {
		http.Error(w, "Malformed todo item", http.StatusBadRequest)
		log.Debugf("[replaceTodoHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	if in.ID != id {
		http.Error(w, "Todo item id does not match the path", http.StatusBadRequest)
		log.Debugf("[replaceTodoHandler][%s] body id %d, path id %d", sID, in.ID, id)
		return
	}

	_, err = api.todos.UpdateTodo(r.Context(), storage.TodoItem{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		IsCompleted: in.IsCompleted,
	})
	if err != nil {
		writeStoreError(w, err, "replaceTodoHandler", sID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Debugf("[replaceTodoHandler][%s] todo item %d replaced", sID, id)
}

// patchTodoHandler applies a JSON Patch document and writes the result only
// if the item did not change since it was read.
func (api *API) patchTodoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[patchTodoHandler][%s] failed to parse todo ID: %v", sID, err)
		return
	}

	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "Unable to read patch document", http.StatusBadRequest)
		log.Debugf("[patchTodoHandler][%s] failed to read request body: %v", sID, err)
		return
	}

	item, err := api.todos.Todo(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "patchTodoHandler", sID)
		return
	}

	patched, err := patch.ApplyTodo(item, doc)
	if err != nil {
		var ve *patch.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, ve, "patchTodoHandler", sID)
			log.Debugf("[patchTodoHandler][%s] %v", sID, ve)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[patchTodoHandler][%s] failed to apply patch: %v", sID, err)
		return
	}

	_, err = api.todos.UpdateTodo(r.Context(), patched)
	if err != nil {
		writeStoreError(w, err, "patchTodoHandler", sID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Debugf("[patchTodoHandler][%s] todo item %d patched", sID, id)
}

func (api *API) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[deleteTodoHandler][%s] failed to parse todo ID: %v", sID, err)
		return
	}

	if err := api.todos.DeleteTodo(r.Context(), id); err != nil {
		writeStoreError(w, err, "deleteTodoHandler", sID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Debugf("[deleteTodoHandler][%s] todo item %d deleted", sID, id)
}

func (api *API) pagedTodosHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	page, size, err := parsePaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		log.Debugf("[pagedTodosHandler][%s] %v", sID, err)
		return
	}

	items, total, err := api.todos.TodosPage(r.Context(), page, size)
	if err != nil {
		writeStoreError(w, err, "pagedTodosHandler", sID)
		return
	}

	totalPages := storage.NumPages(total, size)
	if !pageExists(page, totalPages, total) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Page %d does not exist. Total pages: %d", page, totalPages))
		log.Debugf("[pagedTodosHandler][%s] page %d out of %d", sID, page, totalPages)
		return
	}

	resp := TodoPage{
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		Items:       items,
	}
	writeJSON(w, http.StatusOK, resp, "pagedTodosHandler", sID)
	log.Debugf("[pagedTodosHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}
