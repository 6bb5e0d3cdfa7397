package api

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/storage"
)

func (api *API) requestLogsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	logs, err := api.logs.RequestLogs(r.Context())
	if err != nil {
		writeStoreError(w, err, "requestLogsHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, logs, "requestLogsHandler", sID)
	log.Debugf("[requestLogsHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}

func (api *API) requestLogHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		log.Debugf("[requestLogHandler][%s] failed to parse log ID: %v", sID, err)
		return
	}

	entry, err := api.logs.RequestLog(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "requestLogHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, entry, "requestLogHandler", sID)
}

func (api *API) pagedRequestLogsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	page, size, err := parsePaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		log.Debugf("[pagedRequestLogsHandler][%s] %v", sID, err)
		return
	}

	logs, total, err := api.logs.RequestLogsPage(r.Context(), page, size)
	if err != nil {
		writeStoreError(w, err, "pagedRequestLogsHandler", sID)
		return
	}

	totalPages := storage.NumPages(total, size)
	if !pageExists(page, totalPages, total) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Page %d does not exist. Total pages: %d", page, totalPages))
		log.Debugf("[pagedRequestLogsHandler][%s] page %d out of %d", sID, page, totalPages)
		return
	}

	resp := RequestLogPage{
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		Logs:        logs,
	}
	writeJSON(w, http.StatusOK, resp, "pagedRequestLogsHandler", sID)
}
