// Package http holds small response helpers shared by the handler packages.
package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"salesviz/internal/logging"
	"salesviz/internal/templates"
)

// RenderTemplate renders a full page template with data
func RenderTemplate(w http.ResponseWriter, renderer *templates.Renderer, templateName string, data map[string]any) {
	RenderTemplateStatus(w, renderer, http.StatusOK, templateName, data)
}

// RenderTemplateStatus renders a full page template with the given status.
func RenderTemplateStatus(w http.ResponseWriter, renderer *templates.Renderer, status int, templateName string, data map[string]any) {
	if renderer != nil {
		renderer.RenderStatus(w, status, templateName, data)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte("<html><body><h1>" + templateName + "</h1><p>Templates not loaded. Check configuration.</p></body></html>"))
}

// ErrorResponse sends a plain text error and logs it.
func ErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	logRequestError(r, message, statusCode)
	http.Error(w, message, statusCode)
}

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// JSONError sends message as an ErrorBody.
func JSONError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	logRequestError(r, message, statusCode)
	JSON(w, r, statusCode, ErrorBody{Error: message, Status: statusCode})
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	render.Status(r, statusCode)
	render.JSON(w, r, v)
}

// WantsHTML reports whether the client asked for a page rather than JSON,
// as a browser form submission does.
func WantsHTML(r *http.Request) bool {
	switch render.GetAcceptedContentType(r) {
	case render.ContentTypeHTML:
		return true
	case render.ContentTypeJSON:
		return false
	}
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func logRequestError(r *http.Request, message string, statusCode int) {
	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		"path", r.URL.Path,
		"status", statusCode,
		"error", message,
	)
}

// RequestLogger logs one line per request and tags every record logged
// with the request context with its request ID. It must come after
// middleware.RequestID.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.With(ctx, "request_id", id)
			r = r.WithContext(ctx)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
