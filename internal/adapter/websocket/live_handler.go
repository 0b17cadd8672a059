package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/platform/correlation"
)

const maxMessageBytes = 16 << 20

// LiveSessions is the session table the handler drives.
type LiveSessions interface {
	Connect() string
	SetSource(ctx context.Context, id string, image []byte) error
	ProcessFrame(ctx context.Context, id string, frame []byte) ([]byte, error)
	Touch(id string) error
	Disconnect(id string)
}

// LiveHandler serves the live face swap protocol. Each connection owns one
// session; messages are handled in arrival order on the reading goroutine
// and all writes go through the connection's writer.
type LiveHandler struct {
	sessions LiveSessions
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
	maxConns int

	mu    sync.Mutex
	conns map[string]*connWriter
}

// NewLiveHandler creates the handler. maxConns <= 0 disables the limit; m may be nil.
func NewLiveHandler(sessions LiveSessions, checkOrigin func(*http.Request) bool, maxConns int, clock clockwork.Clock, m *metrics.WebSocketMetrics) *LiveHandler {
	return &LiveHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     checkOrigin,
		},
		clock:    clock,
		metrics:  m,
		maxConns: maxConns,
		conns:    make(map[string]*connWriter),
	}
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxConns > 0 && h.ConnectionCount() >= h.maxConns {
		if h.metrics != nil {
			h.metrics.Rejected.Inc()
		}
		slog.WarnContext(r.Context(), "WebSocket connection limit reached", "limit", h.maxConns)
		http.Error(w, "too many live sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	id := h.sessions.Connect()
	cw := newConnWriter(conn, h.clock, h.metrics)
	h.register(id, cw)

	ctx := correlation.WithSessionID(r.Context(), id)
	slog.InfoContext(ctx, "Live session connected", "remote_addr", r.RemoteAddr)

	defer func() {
		h.unregister(id)
		h.sessions.Disconnect(id)
		cw.stop()
		slog.InfoContext(ctx, "Live session disconnected")
	}()

	cw.send(mustMarshal(serverMessage{Type: TypeSessionCreated, SessionID: id}))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "Live connection read failed", "error", err)
			}
			return
		}
		cw.updateReadDeadline()

		if !h.handleMessage(ctx, id, cw, data) {
			cw.stopGraceful("session expired")
			return
		}
	}
}

// handleMessage processes one client message. It returns false when the
// session no longer exists and the connection should close.
func (h *LiveHandler) handleMessage(ctx context.Context, id string, cw *connWriter, data []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.countReceived("invalid")
		alive := h.touch(id)
		cw.send(errorMessage("Invalid message format"))
		return alive
	}

	var err error
	switch msg.Type {
	case TypeSourceImage:
		h.countReceived(msg.Type)
		err = h.handleSource(ctx, id, cw, msg.Data)
	case TypeFrame:
		h.countReceived(msg.Type)
		err = h.handleFrame(ctx, id, cw, msg.Data)
	case TypePing:
		h.countReceived(msg.Type)
		if err = h.sessions.Touch(id); err == nil {
			cw.send(mustMarshal(serverMessage{Type: TypePong, Timestamp: float64(h.clock.Now().UnixMilli()) / 1000}))
		}
	default:
		h.countReceived("unknown")
		alive := h.touch(id)
		cw.send(errorMessage("Unknown message type: " + msg.Type))
		return alive
	}

	if err == nil {
		return true
	}
	cw.send(errorMessage(errorText(err)))
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false
	}
	if !isExpected(err) {
		slog.WarnContext(ctx, "Live message failed", "type", msg.Type, "error", err)
	}
	return true
}

// touch records a message that never reached a session operation. It returns
// false once the session is gone.
func (h *LiveHandler) touch(id string) bool {
	return !errors.Is(h.sessions.Touch(id), domain.ErrSessionNotFound)
}

func (h *LiveHandler) handleSource(ctx context.Context, id string, cw *connWriter, data string) error {
	img, err := decodeImage(data)
	if err != nil {
		if touchErr := h.sessions.Touch(id); touchErr != nil {
			return touchErr
		}
		return errors.Join(domain.ErrUnreadableImage, err)
	}
	if err := h.sessions.SetSource(ctx, id, img); err != nil {
		return err
	}
	cw.send(mustMarshal(serverMessage{Type: TypeSourceReady, Message: "Face detected and ready for swapping"}))
	return nil
}

func (h *LiveHandler) handleFrame(ctx context.Context, id string, cw *connWriter, data string) error {
	img, err := decodeImage(data)
	if err != nil {
		if touchErr := h.sessions.Touch(id); touchErr != nil {
			return touchErr
		}
		return errors.Join(domain.ErrUnreadableImage, err)
	}
	out, err := h.sessions.ProcessFrame(ctx, id, img)
	if err != nil {
		return err
	}
	cw.send(mustMarshal(serverMessage{Type: TypeFrameResult, Data: encodeImage(out)}))
	return nil
}

func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoFaceDetected):
		return "No face detected in source image"
	case errors.Is(err, domain.ErrSourceNotReady):
		return "Source face not set. Send source_image first."
	case errors.Is(err, domain.ErrSessionNotFound):
		return "Session expired. Reconnect to start a new session."
	case errors.Is(err, domain.ErrUnreadableImage):
		return "Could not decode image data"
	case errors.Is(err, domain.ErrEngineUnavailable):
		return "Face engine temporarily unavailable"
	default:
		return "Error processing frame"
	}
}

func isExpected(err error) bool {
	return errors.Is(err, domain.ErrNoFaceDetected) ||
		errors.Is(err, domain.ErrSourceNotReady) ||
		errors.Is(err, domain.ErrUnreadableImage)
}

// CloseSessions notifies and closes the connections of sessions that were
// evicted from the table. It is the reaper's eviction callback.
func (h *LiveHandler) CloseSessions(ids []string) {
	for _, id := range ids {
		h.mu.Lock()
		cw, ok := h.conns[id]
		h.mu.Unlock()
		if !ok {
			continue
		}
		cw.send(errorMessage("Session closed due to inactivity. Reconnect to start a new session."))
		cw.stopGraceful("session expired")
	}
}

// ConnectionCount returns the number of open connections.
func (h *LiveHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every open connection with a going-away notice.
func (h *LiveHandler) Shutdown() {
	h.mu.Lock()
	writers := make([]*connWriter, 0, len(h.conns))
	for _, cw := range h.conns {
		writers = append(writers, cw)
	}
	h.mu.Unlock()

	for _, cw := range writers {
		cw.stopGraceful("server shutting down")
	}
}

func (h *LiveHandler) register(id string, cw *connWriter) {
	h.mu.Lock()
	h.conns[id] = cw
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
}

func (h *LiveHandler) unregister(id string) {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
}

func (h *LiveHandler) countReceived(kind string) {
	if h.metrics != nil {
		h.metrics.MessagesReceived.WithLabelValues(kind).Inc()
	}
}
