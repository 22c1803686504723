package bridge

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/dmx-osc-bridge/internal/services/dmx"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/events"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/forwarder"
)

const waitFor = 2 * time.Second

func startServer(t *testing.T, cfg HandlerConfig) (*Acceptor, *recordingReporter, string) {
	t.Helper()
	reporter := &recordingReporter{}
	cfg.Reporter = reporter
	acceptor := NewAcceptor(NewHandler(cfg), reporter)

	srv := httptest.NewServer(acceptor)
	t.Cleanup(srv.Close)
	t.Cleanup(acceptor.CloseAll)

	return acceptor, reporter, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func filled(value byte) []byte {
	b := make([]byte, dmx.UniverseSize)
	for i := range b {
		b[i] = value
	}
	return b
}

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAcceptor_ForwardsFrames(t *testing.T) {
	sender := &recordingSender{}
	_, _, url := startServer(t, HandlerConfig{Sender: sender})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))

	require.Eventually(t, func() bool {
		return len(sender.Packets()) == dmx.UniverseSize
	}, waitFor, 10*time.Millisecond)

	packets := sender.Packets()
	for i, want := range []int32{1, 2, 3, 0} {
		assert.Equal(t, want, decode(t, packets[i]).Arguments[0], "channel %d", i+1)
	}
}

func TestAcceptor_TextFrameDoesNotDisturbStream(t *testing.T) {
	sender := &recordingSender{}
	_, reporter, url := startServer(t, HandlerConfig{Sender: sender})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not dmx")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{200}))

	require.Eventually(t, func() bool {
		return len(sender.Packets()) == dmx.UniverseSize
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, int32(200), decode(t, sender.Packets()[0]).Arguments[0])
	assert.Len(t, reporter.ByTopic(events.TopicFrameDropped), 1)
}

func TestAcceptor_ConcurrentConnections(t *testing.T) {
	sender := &recordingSender{}
	_, _, url := startServer(t, HandlerConfig{Sender: sender})

	values := []byte{11, 22}
	var wg sync.WaitGroup
	for _, v := range values {
		conn := dial(t, url)
		wg.Add(1)
		go func(conn *websocket.Conn, v byte) {
			defer wg.Done()
			assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, filled(v)))
		}(conn, v)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(sender.Packets()) == len(values)*dmx.UniverseSize
	}, waitFor, 10*time.Millisecond)

	// Every message decodes intact and each connection's channels arrive in order.
	next := map[int32]int{}
	for _, packet := range sender.Packets() {
		msg := decode(t, packet)
		v := msg.Arguments[0].(int32)
		channel := next[v]
		require.Equal(t, "/dmx/universe/0/"+strconv.Itoa(channel+1), msg.Address, "value %d", v)
		next[v] = channel + 1
	}
	for _, v := range values {
		assert.Equal(t, dmx.UniverseSize, next[int32(v)])
	}
}

func TestAcceptor_HandshakeFailure(t *testing.T) {
	_, reporter, url := startServer(t, HandlerConfig{Sender: &recordingSender{}})
	httpURL := "http" + strings.TrimPrefix(url, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Len(t, reporter.ByTopic(events.TopicHandshakeFailed), 1)

	// The acceptor keeps serving after a failed handshake
	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1}))
}

func TestAcceptor_TracksConnections(t *testing.T) {
	acceptor, reporter, url := startServer(t, HandlerConfig{Sender: &recordingSender{}})
	assert.Equal(t, 0, acceptor.ActiveConnections())

	conn := dial(t, url)
	require.Eventually(t, func() bool {
		return len(reporter.ByTopic(events.TopicConnectionOpened)) == 1
	}, waitFor, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	require.Eventually(t, func() bool {
		return len(reporter.ByTopic(events.TopicConnectionClosed)) == 1
	}, waitFor, 10*time.Millisecond)

	closed := reporter.ByTopic(events.TopicConnectionClosed)[0]
	opened := reporter.ByTopic(events.TopicConnectionOpened)[0]
	assert.Equal(t, opened.ConnID, closed.ConnID)
	assert.NotEmpty(t, opened.ConnID)
	assert.NoError(t, closed.Err)
}

func TestAcceptor_CloseAll(t *testing.T) {
	sender := &recordingSender{}
	acceptor, _, url := startServer(t, HandlerConfig{Sender: sender})
	conn := dial(t, url)

	require.Eventually(t, func() bool {
		return acceptor.ActiveConnections() == 1
	}, waitFor, 10*time.Millisecond)

	acceptor.CloseAll()

	assert.Equal(t, 0, acceptor.ActiveConnections())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestAcceptor_StatsAcrossConnections(t *testing.T) {
	sender := &recordingSender{}
	acceptor, _, url := startServer(t, HandlerConfig{Sender: sender})

	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool {
		return acceptor.ActiveConnections() == 2
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, first.WriteMessage(websocket.BinaryMessage, []byte{1}))
	require.NoError(t, second.WriteMessage(websocket.BinaryMessage, []byte{2}))

	stats := acceptor.handler.Stats()
	require.Eventually(t, func() bool {
		return stats.Snapshot().FramesProcessed == 2
	}, waitFor, 10*time.Millisecond)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(2), snap.ConnectionsTotal)
	assert.Equal(t, int64(2), snap.ActiveConnections)
}

func TestAcceptor_EndToEndUDP(t *testing.T) {
	receiver := listenUDP(t)
	fwd, err := forwarder.Dial("127.0.0.1", receiver.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fwd.Close() })

	_, _, url := startServer(t, HandlerConfig{Sender: fwd})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{10, 20, 30, 40}))

	// Only the head of the frame is read; tail datagrams may be dropped by a small
	// socket buffer, which is acceptable for UDP.
	buf := make([]byte, 1500)
	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(waitFor)))
	for i := 0; i < 8; i++ {
		n, _, err := receiver.ReadFromUDP(buf)
		require.NoError(t, err)
		msg := decode(t, buf[:n])
		assert.Equal(t, "/dmx/universe/0/"+strconv.Itoa(i+1), msg.Address)
		if i < 4 {
			assert.Equal(t, int32((i+1)*10), msg.Arguments[0])
		} else {
			assert.Equal(t, int32(0), msg.Arguments[0])
		}
	}
}

func TestAcceptor_EndToEndBundle(t *testing.T) {
	receiver := listenUDP(t)
	fwd, err := forwarder.Dial("127.0.0.1", receiver.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fwd.Close() })

	_, _, url := startServer(t, HandlerConfig{Sender: fwd, Universe: "eos/dmx", Bundle: true})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, filled(77)))

	buf := make([]byte, 64*1024)
	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(waitFor)))
	n, _, err := receiver.ReadFromUDP(buf)
	require.NoError(t, err)

	p, err := osc.ParsePacket(string(buf[:n]))
	require.NoError(t, err)
	bundle, ok := p.(*osc.Bundle)
	require.True(t, ok, "expected *osc.Bundle, got %T", p)
	require.Len(t, bundle.Messages, dmx.UniverseSize)
	assert.Equal(t, "/eos/dmx/512", bundle.Messages[511].Address)
	assert.Equal(t, int32(77), bundle.Messages[511].Arguments[0])
}

// countingSender counts attempts on top of a real forwarder.
type countingSender struct {
	next     Sender
	mu       sync.Mutex
	attempts int
}

func (c *countingSender) Send(packet []byte) error {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
	return c.next.Send(packet)
}

func (c *countingSender) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func TestAcceptor_BrokenDestination(t *testing.T) {
	receiver := listenUDP(t)
	port := receiver.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, receiver.Close())

	fwd, err := forwarder.Dial("127.0.0.1", port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fwd.Close() })
	sender := &countingSender{next: fwd}

	_, _, url := startServer(t, HandlerConfig{Sender: sender})
	first := dial(t, url)
	second := dial(t, url)

	require.NoError(t, first.WriteMessage(websocket.BinaryMessage, filled(1)))
	require.NoError(t, second.WriteMessage(websocket.BinaryMessage, filled(2)))
	require.NoError(t, first.WriteMessage(websocket.BinaryMessage, filled(3)))

	require.Eventually(t, func() bool {
		return sender.Attempts() == 3*dmx.UniverseSize
	}, waitFor, 10*time.Millisecond)

	// Both connections remain usable
	require.NoError(t, second.WriteMessage(websocket.BinaryMessage, filled(4)))
	require.Eventually(t, func() bool {
		return sender.Attempts() == 4*dmx.UniverseSize
	}, waitFor, 10*time.Millisecond)
}
