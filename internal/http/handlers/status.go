package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/internal/transcript"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// ProgressSource is satisfied by *dispatch.Engine.
type ProgressSource interface {
	Progress() dispatch.Progress
}

// RecentSource is satisfied by *transcript.MemoryStore.
type RecentSource interface {
	Recent(n int) []transcript.Entry
}

// StatusHandler serves the ops view of the running conversation.
type StatusHandler struct {
	progress ProgressSource
	recent   RecentSource
	runs     transcript.Reader
	logger   *logging.Logger
}

func NewStatusHandler(progress ProgressSource, recent RecentSource, logger *logging.Logger) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{progress: progress, recent: recent, logger: logger}
}

// WithRunReader enables GET /status/runs/{id} against a journal.
func (h *StatusHandler) WithRunReader(r transcript.Reader) *StatusHandler {
	h.runs = r
	return h
}

// Health always answers ok while the process is up.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the current run progress.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		writeJSON(w, http.StatusOK, dispatch.Progress{Status: dispatch.StatusPending})
		return
	}
	writeJSON(w, http.StatusOK, h.progress.Progress())
}

// Messages returns the most recent sent messages. ?limit=n caps the count
// (default 50); limit=0 returns everything the store holds.
func (h *StatusHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries := []transcript.Entry{}
	if h.recent != nil {
		entries = h.recent.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": entries,
		"count":    len(entries),
	})
}

// Run returns a journaled run with its messages.
func (h *StatusHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run journal not configured"})
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run id"})
		return
	}
	run, err := h.runs.Run(r.Context(), runID)
	if errors.Is(err, transcript.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", "run_id", runID.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	messages, err := h.runs.Messages(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to load run messages", "run_id", runID.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	if messages == nil {
		messages = []transcript.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"messages": messages,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
