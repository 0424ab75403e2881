package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/storage"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	pathJobs     = "/api/jobs"
	headerAPIKey = "X-API-Key"
	contentJSON  = "application/json"
)

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Registry *jobs.Registry
	Queue    *jobs.Queue
	Uploader *storage.Uploader
	ClipsDir string
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST "+pathJobs, svc.withCommon(svc.handleCreateJob))
	mux.HandleFunc("GET "+pathJobs, svc.withCommon(svc.handleListJobs))
	mux.HandleFunc("GET "+pathJobs+"/{id}", svc.withCommon(svc.handleGetJob))
	mux.HandleFunc("DELETE "+pathJobs+"/{id}", svc.withCommon(svc.handleDeleteJob))
	mux.HandleFunc("GET "+pathJobs+"/{id}/clips/{filename}", svc.withCommon(svc.handleDownloadClip))

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(headerAPIKey) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		// Enforce max body size
		if max := safeInt64(svc.Cfg.Server.MaxUploadSize); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

type createResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// handleCreateJob accepts a multipart form with either a source_url field or
// an uploaded media file, plus optional clip configuration. Caller errors are
// rejected with 400 before any job record exists.
func (svc *Service) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(safeInt64(svc.Cfg.Server.MaxUploadSize)); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := parseJobConfig(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sourceURL := strings.TrimSpace(r.FormValue("source_url"))

	var sourceFile string
	var cleanup func() error
	if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
		if sourceURL != "" {
			http.Error(w, "provide either source_url or a file, not both", http.StatusBadRequest)
			return
		}
		sourceFile, cleanup, err = svc.Uploader.SaveMultipartMedia(fhs[0], safeInt64(svc.Cfg.Server.MaxUploadSize))
		if err != nil {
			http.Error(w, "upload failed: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	// If we fail before handing off to the worker, remove the upload here.
	defer func() {
		if cleanup != nil {
			_ = cleanup()
		}
	}()

	job, err := svc.Registry.Create(sourceURL, sourceFile, cfg)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidInput) || errors.Is(err, jobs.ErrConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		svc.Log.Error("create job", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := svc.Queue.Enqueue(jobs.WorkItem{Job: job, Cleanup: cleanup}); err != nil {
		svc.Registry.Delete(job.ID)
		http.Error(w, "queue full, try later", http.StatusServiceUnavailable)
		return
	}
	// The worker owns the upload now.
	cleanup = nil

	svc.Log.Info("job enqueued", "job_id", job.ID)
	writeJSON(w, http.StatusAccepted, createResponse{
		JobID:     job.ID,
		StatusURL: path.Join(pathJobs, job.ID),
	})
}

func (svc *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": svc.Registry.List()})
}

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := svc.Registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, jobToOut(job))
}

func (svc *Service) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Idempotent: deleting an unknown or already-deleted job is not an error.
	svc.Registry.Delete(id)
	// Rendered clips go with the record.
	if dir := filepath.Join(svc.ClipsDir, id); filepath.Dir(dir) == filepath.Clean(svc.ClipsDir) {
		if err := os.RemoveAll(dir); err != nil {
			svc.Log.Warn("remove clips dir", "job_id", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleDownloadClip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filename := r.PathValue("filename")

	job, err := svc.Registry.Get(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var found bool
	for _, clip := range job.Clips {
		if clip.File == filename {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	full := filepath.Join(svc.ClipsDir, id, filename)
	// The clip list is server-generated, but keep the path inside the job dir.
	if filepath.Dir(full) != filepath.Join(svc.ClipsDir, id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, full)
}

// parseJobConfig builds a job config from optional form fields on top of the
// defaults. Durations are given in seconds.
func parseJobConfig(r *http.Request) (jobs.Config, error) {
	cfg := jobs.DefaultConfig()

	var err error
	if cfg.NumClips, err = formInt(r, "num_clips", cfg.NumClips); err != nil {
		return cfg, err
	}
	if cfg.MinDuration, err = formSeconds(r, "min_duration", cfg.MinDuration); err != nil {
		return cfg, err
	}
	if cfg.MaxDuration, err = formSeconds(r, "max_duration", cfg.MaxDuration); err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(r.FormValue("keywords")); v != "" {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				cfg.Keywords = append(cfg.Keywords, kw)
			}
		}
	}
	if v := strings.TrimSpace(r.FormValue("aspect")); v != "" {
		cfg.Aspect = types.Aspect(v)
	}
	if cfg.Subtitles, err = formBool(r, "subtitles", cfg.Subtitles); err != nil {
		return cfg, err
	}
	if cfg.ColorGrade, err = formBool(r, "color_grade", cfg.ColorGrade); err != nil {
		return cfg, err
	}
	cfg.MusicSource = strings.TrimSpace(r.FormValue("music_url"))
	if v := strings.TrimSpace(r.FormValue("music_volume")); v != "" {
		vol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, errors.New("invalid music_volume")
		}
		cfg.MusicVolume = vol
	}
	if cfg.CRF, err = formInt(r, "crf", cfg.CRF); err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(r.FormValue("preset")); v != "" {
		cfg.Preset = v
	}
	if v := strings.TrimSpace(r.FormValue("subtitle_font")); v != "" {
		cfg.Subtitle.Font = v
	}
	if cfg.Subtitle.FontSize, err = formInt(r, "subtitle_font_size", cfg.Subtitle.FontSize); err != nil {
		return cfg, err
	}
	if cfg.Subtitle.MaxWords, err = formInt(r, "subtitle_max_words", cfg.Subtitle.MaxWords); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func formInt(r *http.Request, field string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + field)
	}
	return n, nil
}

func formSeconds(r *http.Request, field string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return def, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New("invalid " + field)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func formBool(r *http.Request, field string, def bool) (bool, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + field)
	}
	return b, nil
}

func jobToOut(job jobs.Job) map[string]any {
	out := map[string]any{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"progress":   job.Progress,
		"created_at": job.CreatedAt,
	}
	if job.Message != "" {
		out["error"] = job.Message
	}
	if !job.CompletedAt.IsZero() {
		out["completed_at"] = job.CompletedAt
	}
	if job.Status == jobs.StatusCompleted {
		clips := job.Clips
		if clips == nil {
			clips = []types.Clip{}
		}
		out["clips"] = clips
	}
	// Clips that were selected but did not survive rendering stay visible.
	if len(job.ClipFailures) > 0 {
		out["clip_failures"] = job.ClipFailures
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u)
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
