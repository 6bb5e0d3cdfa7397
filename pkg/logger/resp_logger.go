// Package logger wraps http.ResponseWriter to remember what a handler wrote.
package logger

import "net/http"

type ResponseLogger struct {
	w       http.ResponseWriter
	status  int
	written int
	wrote   bool
}

func New(w http.ResponseWriter) *ResponseLogger {
	return &ResponseLogger{w: w, status: http.StatusOK}
}

// WriteHeader records only the first status, as net/http ignores later calls.
func (l *ResponseLogger) WriteHeader(code int) {
	if l.wrote {
		return
	}
	l.wrote = true
	l.status = code
	l.w.WriteHeader(code)
}

func (l *ResponseLogger) Write(b []byte) (int, error) {
	l.wrote = true
	n, err := l.w.Write(b)
	l.written += n
	return n, err
}

func (l *ResponseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *ResponseLogger) Status() int {
	return l.status
}

// Written returns the number of body bytes sent.
func (l *ResponseLogger) Written() int {
	return l.written
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (l *ResponseLogger) Unwrap() http.ResponseWriter {
	return l.w
}
