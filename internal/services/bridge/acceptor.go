package bridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"

	"github.com/bbernstein/dmx-osc-bridge/internal/logging"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/events"
)

// closeGracePeriod bounds the close frame write during shutdown.
const closeGracePeriod = time.Second

// Acceptor upgrades inbound HTTP requests to WebSocket connections and runs the
// Handler on each of them. net/http runs every request on its own goroutine, so
// connections are served concurrently with each other and with the accept loop.
type Acceptor struct {
	handler  *Handler
	reporter events.Reporter
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewAcceptor creates an Acceptor that hands connections to handler.
func NewAcceptor(handler *Handler, reporter events.Reporter) *Acceptor {
	if reporter == nil {
		reporter = events.Discard
	}
	return &Acceptor{
		handler:  handler,
		reporter: reporter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Clients are not authenticated
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[string]*websocket.Conn),
	}
}

// ServeHTTP performs the opening handshake and serves the connection until it closes.
// A failed handshake is reported and only affects this request.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats := a.handler.Stats()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		stats.handshakeFailures.Add(1)
		a.reporter.Report(events.Event{
			Topic:  events.TopicHandshakeFailed,
			Detail: "from " + r.RemoteAddr,
			Err:    err,
		})
		return
	}

	id := cuid.New()
	a.track(id, conn)
	stats.connectionsTotal.Add(1)
	stats.activeConnections.Add(1)
	logging.Infof("New connection %s from %s", id, r.RemoteAddr)
	a.reporter.Report(events.Event{
		Topic:  events.TopicConnectionOpened,
		ConnID: id,
		Detail: "from " + r.RemoteAddr,
	})

	err = a.handler.Serve(conn, id)

	a.untrack(id)
	_ = conn.Close()
	stats.activeConnections.Add(-1)

	closed := events.Event{Topic: events.TopicConnectionClosed, ConnID: id}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		closed.Err = err
		logging.Warnf("Connection %s closed: %v", id, err)
	} else {
		logging.Infof("Connection %s closed", id)
	}
	a.reporter.Report(closed)
}

// ActiveConnections returns the number of connections currently being served.
func (a *Acceptor) ActiveConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// CloseAll closes every active connection. Their handlers exit on the next read.
func (a *Acceptor) CloseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, conn := range a.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(closeGracePeriod))
		_ = conn.Close()
		delete(a.conns, id)
	}
}

func (a *Acceptor) track(id string, conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[id] = conn
}

func (a *Acceptor) untrack(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, id)
}
