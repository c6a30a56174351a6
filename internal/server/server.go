package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jo-hoe/reelsmith/internal/common"
	"github.com/jo-hoe/reelsmith/internal/config"
	"github.com/jo-hoe/reelsmith/internal/jobs"
	"github.com/jo-hoe/reelsmith/internal/storage"
)

// Service bundles the injected handles the HTTP layer needs. Everything is
// constructed in main and passed in; the handlers own no state of their own.
type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Store    jobs.Store
	Queue    jobs.Enqueuer
	Uploader *storage.Uploader
	// FilesRoot, when set, is served under /files so locally stored
	// artifacts resolve at their public URLs.
	FilesRoot string
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		loggingMiddleware(svc.Log),
	)

	r.Get(common.PathHealthz, func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(common.PathVideos, func(r chi.Router) {
		r.Use(svc.withCommon)
		r.Post("/", svc.handleCreateVideo)
		r.Get("/{id}", svc.handleGetVideo)
	})
	r.With(svc.withCommon).Post(common.PathAssets, svc.handleUploadAsset)

	if svc.FilesRoot != "" {
		fs := http.StripPrefix(common.PathFiles+"/", http.FileServer(http.Dir(svc.FilesRoot)))
		r.Get(common.PathFiles+"/*", fs.ServeHTTP)
	}

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		// Enforce max body size
		if max := safeInt64(svc.Cfg.Server.MaxUploadSize); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

type createResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// handleCreateVideo is the admission path: validate, write the record, then
// enqueue. The two writes are not transactional; an enqueue failure after
// the record write leaves the job permanently pending and is logged as an
// operational alarm.
func (svc *Service) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req jobs.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.NewString()
	rec := &jobs.JobRecord{
		ID:        jobID,
		Request:   req,
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.Store.CreateJob(rec); err != nil {
		svc.Log.Error("persist job", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := svc.Queue.Enqueue(jobs.QueuedJob{JobID: jobID, Request: req}); err != nil {
		svc.Log.Error("enqueue failed after record write, job stuck pending", "job_id", jobID, "err", err)
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue full, try later")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	svc.Log.Info("job accepted", "job_id", jobID, "images", len(req.Images))

	writeJSON(w, http.StatusAccepted, createResponse{
		JobID:     jobID,
		Status:    string(jobs.StatusPending),
		StatusURL: path.Join(common.PathVideos, jobID),
	})
}

func (svc *Service) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := svc.Store.GetJob(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		svc.Log.Error("load job", "job_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, recordToOut(rec))
}

func (svc *Service) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	max := safeInt64(svc.Cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(max); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	fileHeaders := r.MultipartForm.File["file"]
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	url, mimeType, err := svc.Uploader.SaveMultipartImage(r.Context(), fileHeaders[0], max)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"url":          url,
		"content_type": mimeType,
	})
}

func recordToOut(rec *jobs.JobRecord) map[string]any {
	out := map[string]any{
		"job_id":     rec.ID,
		"status":     string(rec.Status),
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
	if rec.ResultURL != nil {
		out["result_url"] = *rec.ResultURL
	}
	if rec.ErrorMsg != nil {
		out["error"] = *rec.ErrorMsg
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
