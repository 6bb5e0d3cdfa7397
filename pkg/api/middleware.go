package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/storage"
)

type ctxKeyRequestID struct{}

var RequestIDKey = ctxKeyRequestID{}

// unknownIP is stored when the client address cannot be determined.
const unknownIP = "Unknown"

func (api *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				log.Errorf("[requestIDMiddleware] failed to generate request ID for %v: %v", r.RemoteAddr, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			reqID = id.String()
			log.Debugf("[requestIDMiddleware] generated request ID:%s for %v", reqID, r.RemoteAddr)
		}

		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (api *API) headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Request-Id")
		w.Header().Set("Access-Control-Expose-Headers", "Location, X-Request-Id")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogMiddleware stores one RequestLog per request before it is routed.
// A failed write aborts the request with 500.
func (api *API) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		reqID := GetRequestID(r.Context())
		sID := shorten(reqID)

		entry, err := api.logs.AddRequestLog(r.Context(), storage.RequestLog{
			IPAddress:  clientIP(r, api.trustProxyHeaders),
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
		})
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Errorf("[requestLogMiddleware][%s] failed to store request log: %v", sID, err)
			return
		}
		log.Debugf("[requestLogMiddleware][%s] request log %d stored", sID, entry.ID)

		if api.publisher != nil {
			api.publisher.Publish(entry, reqID)
		}

		next.ServeHTTP(w, r)
	})
}

// isExcluded matches path against the excluded prefixes segment by segment,
// ignoring case: "/api/requestlogs" covers "/API/RequestLogs/5" but not
// "/api/requestlogsx".
func (api *API) isExcluded(path string) bool {
	for _, prefix := range api.excluded {
		prefix = strings.TrimRight(prefix, "/")
		if len(path) < len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
			continue
		}
		if len(path) == len(prefix) || path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
				return ip
			}
		}
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if ip == "" {
		return unknownIP
	}

	return ip
}

// requireAuth lets the request through only with a valid bearer token.
func (api *API) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sID := shorten(GetRequestID(r.Context()))

		header := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			log.Debugf("[requireAuth][%s] missing bearer token", sID)
			return
		}

		claims, err := api.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			log.Debugf("[requireAuth][%s] invalid bearer token: %v", sID, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), claims)))
	})
}
