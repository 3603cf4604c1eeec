// Package api exposes the tree-building pipeline over HTTP.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/monitoring"
	"github.com/banshee-data/phylo.report/internal/pipeline"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxUploadBytes caps an upload body when the server is built with a
// non-positive limit.
const DefaultMaxUploadBytes = 64 << 20

var logf = monitoring.Prefixed("api")

type Server struct {
	pipeline       *pipeline.Coordinator
	store          *artifact.Store
	maxUploadBytes int64
}

func NewServer(p *pipeline.Coordinator, store *artifact.Store, maxUploadBytes int64) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		pipeline:       p,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/align", s.handleAlign)
	mux.HandleFunc("/build_tree", s.handleBuildTree)
	mux.HandleFunc("/save_tree", s.handleSaveTree)
	mux.HandleFunc("/results/", s.handleResults)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/view/", s.handleView)
	mux.HandleFunc("/render/", s.handleRender)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Handler returns the mux wrapped in LoggingMiddleware.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}
