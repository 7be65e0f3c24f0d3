package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"logistics-recon/internal/database"
	"logistics-recon/internal/workers"
)

const defaultEventListLimit = 50

// SyncRunner is the part of the sync engine the mail handler needs.
type SyncRunner interface {
	Sync(sinceDays, limit int) (*workers.SyncReport, error)
}

// MailHandler handles mail ingestion HTTP requests
type MailHandler struct {
	engine SyncRunner
	events *database.MailEventStore
}

// NewMailHandler creates a new mail handler
func NewMailHandler(engine SyncRunner, events *database.MailEventStore) *MailHandler {
	return &MailHandler{engine: engine, events: events}
}

// SyncMail handles POST /api/mail/sync. Query parameters days and limit
// bound the run; out-of-range values are clamped by the engine.
func (h *MailHandler) SyncMail(w http.ResponseWriter, r *http.Request) {
	sinceDays := queryInt(r, "days")
	limit := queryInt(r, "limit")

	report, err := h.engine.Sync(sinceDays, limit)
	if err != nil {
		var configErr *workers.ConfigError
		if errors.As(err, &configErr) {
			log.Printf("WARN: Mail sync rejected: %v", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		log.Printf("ERROR: Mail sync failed: %v", err)
		http.Error(w, "Mail sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// GetMailEvents handles GET /api/mail/events. With unmatched=1 only events
// still without a resolved supplier order are returned.
func (h *MailHandler) GetMailEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 500 {
		limit = defaultEventListLimit
	}
	unmatchedOnly := r.URL.Query().Get("unmatched") == "1"

	events, err := h.events.GetRecent(limit, unmatchedOnly)
	if err != nil {
		log.Printf("ERROR: Failed to list mail events: %v", err)
		http.Error(w, "Failed to list mail events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []database.SupplierMailEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(events)
}

// queryInt reads an integer query parameter, 0 when absent or malformed.
func queryInt(r *http.Request, key string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
