package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Events streams engine events as server-sent events. The namespace query
// parameter narrows the stream with the bus prefix rules; empty means
// everything. The stream ends when the client disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	namespace := r.URL.Query().Get("namespace")
	ch, unsub := h.deps.Bus.Subscribe(namespace, 64)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.deps.Logger.Debug("event stream opened", zap.String("namespace", namespace))
	for {
		select {
		case evt := <-ch:
			data, err := json.Marshal(streamEvent{
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp,
				Payload:   evt.Payload,
			})
			if err != nil {
				h.deps.Logger.Warn("event marshal failed",
					zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			h.deps.Logger.Debug("event stream closed", zap.String("namespace", namespace))
			return
		}
	}
}
