package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers groups the route handlers mounted under /api.
type Handlers struct {
	Auth    *AuthHandler
	Contact *ContactHandler
	Project *ProjectHandler
}

// NewRouter 创建路由并注册所有 handler
func NewRouter(h Handlers, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(logger))

	// Health check endpoint (public, no auth)
	r.HandleFunc("/health", HealthCheckHandler).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	if h.Auth != nil {
		h.Auth.RegisterRoutes(apiRouter)
	}
	if h.Contact != nil {
		h.Contact.RegisterRoutes(apiRouter)
	}
	if h.Project != nil {
		h.Project.RegisterRoutes(apiRouter)
	}

	return r
}

// RequestIDHeader carries the request id on responses.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags every request with an id and logs it once served.
func RequestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
