package api

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func (api *API) loginHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	var req LoginRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req)
	if err != nil {
		http.Error(w, "Malformed login request", http.StatusBadRequest)
		log.Debugf("[loginHandler][%s] failed to decode request body: %v", sID, err)
		return
	}

	if !api.verifier.Verify(r.Context(), req.Username, req.Password) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		log.Infof("[loginHandler][%s] rejected credentials from %v", sID, r.RemoteAddr)
		return
	}

	token, err := api.tokens.Generate(req.Username)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[loginHandler][%s] failed to sign token: %v", sID, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token}, "loginHandler", sID)
	log.Debugf("[loginHandler][%s] token issued to %q", sID, req.Username)
}
