package streamhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/distributor"
)

const maxReplayParam = 500

// StreamHandler serves the SSE event stream at GET /api/v1/events/stream.
// A reconnecting client passes ?replay=N to backfill the last N events
// before live delivery starts.
type StreamHandler struct {
	dist *distributor.Distributor
}

// NewStreamHandler constructs an SSE stream handler.
func NewStreamHandler(dist *distributor.Distributor) *StreamHandler {
	return &StreamHandler{dist: dist}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.dist == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sub, err := h.dist.Subscribe(tenantID)
	if err != nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.dist.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	// Subscribe first, replay second: anything published in between is
	// both in the snapshot and queued live, so the sequence watermark
	// filters the duplicates.
	var lastSeq uint64
	for _, event := range replaySnapshot(h.dist, tenantID, r.URL.Query().Get("replay")) {
		writeSSE(w, event)
		if event.Sequence > lastSeq {
			lastSeq = event.Sequence
		}
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if event.Sequence <= lastSeq {
				continue
			}
			lastSeq = event.Sequence
			writeSSE(w, event)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// replaySnapshot returns up to n buffered events in publish order.
func replaySnapshot(dist *distributor.Distributor, tenantID, param string) []distributor.Event {
	n, _ := strconv.Atoi(param)
	if n <= 0 {
		return nil
	}
	if n > maxReplayParam {
		n = maxReplayParam
	}
	newest := dist.Events(tenantID, n)
	events := make([]distributor.Event, len(newest))
	for i, event := range newest {
		events[len(newest)-1-i] = event
	}
	return events
}

func writeSSE(w http.ResponseWriter, event distributor.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event.Type + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
