package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/feed"
	"feedsync/scheduler"
	"feedsync/services"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type Handlers struct {
	importer Importer
	trigger  Trigger
	jobs     JobReader
	feeds    map[string]*config.FeedConfig
	logger   *slog.Logger
}

func NewHandlers(importer Importer, trigger Trigger, jobs JobReader, feeds map[string]*config.FeedConfig, logger *slog.Logger) *Handlers {
	return &Handlers{
		importer: importer,
		trigger:  trigger,
		jobs:     jobs,
		feeds:    feeds,
		logger:   logger.With("component", "api"),
	}
}

type importRequest struct {
	FeedID  string `json:"feed_id"`
	FeedURL string `json:"feed_url"`
}

// CreateImport runs an import synchronously and returns its result.
func (h *Handlers) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The import outlives a dropped client connection.
	ctx := context.WithoutCancel(r.Context())

	var (
		res *services.Result
		err error
	)
	switch {
	case req.FeedID != "":
		fc, ok := h.feeds[req.FeedID]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown feed "+req.FeedID)
			return
		}
		res, err = h.importer.Run(ctx, fc)
	case req.FeedURL != "":
		res, err = h.importer.RunURL(ctx, req.FeedURL)
	default:
		writeError(w, http.StatusBadRequest, "feed_id or feed_url is required")
		return
	}

	if err != nil {
		status := importErrorStatus(err)
		h.logger.Warn("import request failed", "feed_id", req.FeedID, "feed_url", req.FeedURL, "status", status, "error", err)
		if res != nil {
			writeJSON(w, status, map[string]any{"error": err.Error(), "result": res})
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func importErrorStatus(err error) int {
	var (
		fetchErr *feed.FetchError
		parseErr *feed.ParseError
	)
	switch {
	case errors.Is(err, services.ErrImportRunning):
		return http.StatusConflict
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// TriggerFeed queues a background import of a configured feed. Progress is
// visible through the import job endpoints.
func (h *Handlers) TriggerFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")
	if err := h.trigger.Trigger(feedID); err != nil {
		if errors.Is(err, scheduler.ErrUnknownFeed) {
			writeError(w, http.StatusNotFound, "unknown feed "+feedID)
			return
		}
		h.logger.Error("trigger import failed", "feed_id", feedID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger import")
		return
	}
	h.logger.Info("import triggered", "feed_id", feedID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "feed_id": feedID})
}

func (h *Handlers) ListImports(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	jobs, err := h.jobs.ListImportJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error("list import jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list import jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handlers) GetImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.GetImportJob(r.Context(), id)
	if err != nil {
		h.logger.Error("get import job failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "import job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
