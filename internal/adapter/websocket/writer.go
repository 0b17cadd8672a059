package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// connWriter owns all writes to one connection: queued messages and
// keepalive pings go through a single goroutine.
type connWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newConnWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *connWriter {
	cw := &connWriter{
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *connWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			if cw.metrics != nil {
				cw.metrics.MessagesSent.Inc()
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// send queues msg. It blocks while the buffer is full and returns false
// once the writer has stopped.
func (cw *connWriter) send(msg []byte) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	case <-cw.doneChannel:
		return false
	}
}

func (cw *connWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful flushes queued messages, then sends a normal close frame
// with reason and closes the connection.
func (cw *connWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		cw.wg.Wait()

		for drained := false; !drained; {
			select {
			case msg := <-cw.sendChannel:
				cw.updateWriteDeadline()
				_ = cw.connection.WriteMessage(websocket.TextMessage, msg)
			default:
				drained = true
			}
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}

func (cw *connWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *connWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *connWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
