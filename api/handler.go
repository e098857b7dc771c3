// Package api exposes the job pool over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/queue"
)

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	queue    *queue.Queue
	cfg      *config
	validate *validator.Validate
}

// Handler creates an http.Handler serving the job API for q.
//
// Usage:
//
//	srv := &http.Server{Addr: ":8080", Handler: api.Handler(q, api.WithLogger(log))}
func Handler(q *queue.Queue, opts ...Option) http.Handler {
	h := &handler{
		queue:    q,
		cfg:      newConfig(opts...),
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.cfg.logger))
	r.Use(middleware.Recoverer)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Get("/stats", h.stats)
	r.Get("/healthz", h.health)
	if h.cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.gatherer, promhttp.HandlerOpts{}))
	}

	if h.cfg.middleware != nil {
		return h.cfg.middleware(r)
	}
	return r
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	job, err := h.queue.SubmitJob(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, core.ErrInvalidJobName) || errors.Is(err, core.ErrJobNameTooLong) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.cfg.logger.ErrorContext(r.Context(), "submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.cfg.logger.ErrorContext(r.Context(), "lookup failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	status := core.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	limit := DefaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, MaxListLimit)
	}

	jobs := h.queue.ListJobs(status, limit)
	if jobs == nil {
		jobs = []core.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Stats())
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "name is required"
	case "max":
		return "name must be at most " + fe.Param() + " characters"
	default:
		return "invalid " + fe.Field()
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
