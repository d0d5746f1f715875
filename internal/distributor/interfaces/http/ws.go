package streamhttp

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/distributor"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = 30 * time.Second
)

// WSHandler serves the WebSocket event stream at GET /api/v1/events/ws.
// It speaks the same envelope as the SSE stream, one JSON event per
// message, with the same ?replay=N backfill.
type WSHandler struct {
	dist     *distributor.Distributor
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WebSocket stream handler.
func NewWSHandler(dist *distributor.Distributor, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		dist:   dist,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Token auth happens before the upgrade; the dashboard is
			// served from a different origin than the API.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.dist == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
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

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.dist.Unsubscribe(sub)
		return
	}

	done := make(chan struct{})
	go h.readLoop(conn, done)
	go h.writeLoop(conn, sub, r.URL.Query().Get("replay"), done)
}

// readLoop drains client frames so pongs are processed and close frames
// detected.
func (h *WSHandler) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, sub *distributor.Subscription, replayParam string, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingEvery)
	defer func() {
		ticker.Stop()
		h.dist.Unsubscribe(sub)
		_ = conn.Close()
	}()

	var lastSeq uint64
	for _, event := range replaySnapshot(h.dist, sub.TenantID(), replayParam) {
		if err := h.writeEvent(conn, event); err != nil {
			return
		}
		if event.Sequence > lastSeq {
			lastSeq = event.Sequence
		}
	}

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if event.Sequence <= lastSeq {
				continue
			}
			lastSeq = event.Sequence
			if err := h.writeEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, event distributor.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}
