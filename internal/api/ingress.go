package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const maxChunkSize = 8 << 20

// Capture clients are native recorders that send no Origin header; the
// relay performs no caller authentication, so a browser origin check adds
// nothing here.
var ingressUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 4 << 10,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Ingest handles GET /api/ingest/{clientId}: upgrade to a WebSocket and
// relay every binary message as one media chunk into the client's pipeline.
// The channel stays open across dropped chunks and pipeline restarts; only
// connection close or a transport error tears the session down.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/ingest/"))
	if clientID == "" {
		clientID = strings.TrimSpace(r.URL.Query().Get("clientId"))
	}
	if clientID == "" {
		writeError(w, http.StatusBadRequest, errors.New("clientId is required"))
		return
	}

	logger := h.logger(r).With("client_id", clientID)

	conn, err := ingressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Warn("ingress upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChunkSize)

	logger.Info("ingress channel opened", "remote_addr", r.RemoteAddr)

	for {
		msgType, chunk, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				logger.Warn("ingress transport error", "error", err)
			} else {
				logger.Info("ingress channel closed")
			}
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		// Drops are counted and logged by the registry; the channel is
		// never failed over a lost chunk.
		_ = h.Registry.Deliver(clientID, chunk)
	}

	h.Registry.Remove(clientID)
}
