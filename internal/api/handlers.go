package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"camrelay/internal/observability/logging"
	"camrelay/internal/observability/metrics"
	"camrelay/internal/relay"
)

// Handler bundles the control endpoint and ingress handlers with their
// dependencies.
type Handler struct {
	Registry *relay.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

type registerRequest struct {
	ClientID       string `json:"clientId"`
	DestinationKey string `json:"destinationKey"`
	ContentType    string `json:"contentType"`
	HasAudio       bool   `json:"hasAudio"`
}

type registerResponse struct {
	OK       bool   `json:"ok"`
	ClientID string `json:"clientId"`
	HasAudio bool   `json:"hasAudio"`
}

// Streams handles POST /api/streams: register (or replace) the stream
// configuration for a client. A registration without a destination key is
// rejected before any state changes.
func (h *Handler) Streams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid payload"))
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		writeError(w, http.StatusBadRequest, errors.New("clientId is required"))
		return
	}
	if strings.TrimSpace(req.DestinationKey) == "" {
		writeError(w, http.StatusBadRequest, errors.New("destinationKey is required"))
		return
	}

	cfg := relay.StreamConfig{
		DestinationKey: strings.TrimSpace(req.DestinationKey),
		Format:         relay.ParseFormatHint(req.ContentType),
		HasAudio:       req.HasAudio,
	}
	h.Registry.Put(clientID, cfg)

	writeJSON(w, http.StatusOK, registerResponse{OK: true, ClientID: clientID, HasAudio: cfg.HasAudio})
}

// StreamByID handles DELETE /api/streams/{clientId}: stop any running
// pipeline and remove the session. Deregistering an unknown client is not
// an error.
func (h *Handler) StreamByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	clientID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/streams/"))
	if clientID == "" {
		http.NotFound(w, r)
		return
	}

	h.Registry.Remove(clientID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": h.Registry.Len(),
	})
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	if ctxLogger := logging.LoggerFromContext(r.Context()); ctxLogger != nil {
		return ctxLogger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
