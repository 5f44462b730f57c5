// Package api exposes flow record ingestion over HTTP.
package api

import (
	"NetFlowLog/internal/flowlog"
	"NetFlowLog/internal/model"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds a single ingested record.
const maxBodyBytes = 1 << 20

// Handler serves the ingest API on top of a model.Writer.
type Handler struct {
	writer  model.Writer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Options configures NewRouter.
type Options struct {
	// RateLimit caps accepted records per second; zero disables limiting.
	RateLimit float64
	Burst     int
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// NewRouter builds the router for the ingest API.
func NewRouter(writer model.Writer, logger *slog.Logger, opts Options) *mux.Router {
	h := &Handler{writer: writer, logger: logger}
	if opts.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/flows", h.appendFlowHandler).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.healthHandler).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) appendFlowHandler(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "record too large")
		return
	}

	var record model.FlowRecord
	if err := json.Unmarshal(body, &record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow record: "+err.Error())
		return
	}

	if err := h.writer.Append(&record); err != nil {
		h.logger.Error("failed to persist flow record", "flow_id", record.FlowID, "error", err)
		status := http.StatusInternalServerError
		if !errors.Is(err, flowlog.ErrPersistence) {
			status = http.StatusBadGateway
		}
		writeError(w, status, "flow record not persisted")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"flow_id": record.FlowID})
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
