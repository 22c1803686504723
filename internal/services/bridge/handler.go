// Package bridge accepts WebSocket clients and forwards their DMX frames as OSC.
package bridge

import (
	"time"

	"github.com/bbernstein/dmx-osc-bridge/internal/logging"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/dmx"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/events"
	"github.com/bbernstein/dmx-osc-bridge/pkg/dmxosc"
)

// FrameReader is the read side of a WebSocket connection.
type FrameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// Sender delivers one encoded OSC packet.
type Sender interface {
	Send(packet []byte) error
}

// HandlerConfig holds the dependencies shared by every connection.
type HandlerConfig struct {
	Universe string
	Sender   Sender
	Reporter events.Reporter
	Stats    *Stats
	// Bundle sends each frame as a single OSC bundle instead of one datagram per channel.
	Bundle bool
}

// Handler translates frames into OSC packets. One Handler serves all connections;
// it keeps no per-connection state.
type Handler struct {
	encoder  *dmxosc.Encoder
	sender   Sender
	reporter events.Reporter
	stats    *Stats
	bundle   bool
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	universe := cfg.Universe
	if universe == "" {
		universe = dmxosc.DefaultUniverse
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = events.Discard
	}
	stats := cfg.Stats
	if stats == nil {
		stats = &Stats{}
	}

	return &Handler{
		encoder:  dmxosc.NewEncoder(universe),
		sender:   cfg.Sender,
		reporter: reporter,
		stats:    stats,
		bundle:   cfg.Bundle,
	}
}

// Stats returns the handler's counters.
func (h *Handler) Stats() *Stats {
	return h.stats
}

// Serve reads frames until the connection fails or closes, and returns the read error.
// Each binary frame is fully forwarded before the next one is read. Other frame
// types are reported and skipped.
func (h *Handler) Serve(conn FrameReader, connID string) error {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		channels, err := dmx.ParseFrame(messageType, payload)
		if err != nil {
			h.stats.framesDropped.Add(1)
			h.reporter.Report(events.Event{
				Topic:  events.TopicFrameDropped,
				ConnID: connID,
				Detail: "non-binary frame",
				Err:    err,
			})
			continue
		}

		h.ProcessFrame(connID, channels)
	}
}

// ProcessFrame encodes and sends every channel of one universe snapshot, in channel
// order. Encode and send failures are reported per message and do not stop the frame.
func (h *Handler) ProcessFrame(connID string, channels dmx.Universe) {
	if logging.Enabled(logging.LevelDebug) {
		logging.Debugf("Sending DMX data: %s", channels.Hex())
	}
	h.stats.framesProcessed.Add(1)

	if h.bundle {
		h.sendBundle(connID, channels)
		return
	}

	for i, value := range channels {
		packet, err := h.encoder.Encode(i, value)
		if err != nil {
			h.stats.encodeFailures.Add(1)
			h.reporter.Report(events.Event{
				Topic:   events.TopicEncodeFailed,
				ConnID:  connID,
				Channel: i + 1,
				Err:     err,
			})
			continue
		}
		h.send(connID, i+1, packet)
	}
}

func (h *Handler) sendBundle(connID string, channels dmx.Universe) {
	packet, err := h.encoder.EncodeBundle(channels[:], time.Now())
	if err != nil {
		h.stats.encodeFailures.Add(1)
		h.reporter.Report(events.Event{
			Topic:  events.TopicEncodeFailed,
			ConnID: connID,
			Detail: "bundle",
			Err:    err,
		})
		return
	}
	h.send(connID, 0, packet)
}

func (h *Handler) send(connID string, channel int, packet []byte) {
	if err := h.sender.Send(packet); err != nil {
		h.stats.sendFailures.Add(1)
		h.reporter.Report(events.Event{
			Topic:   events.TopicSendFailed,
			ConnID:  connID,
			Channel: channel,
			Err:     err,
		})
		return
	}
	h.stats.datagramsSent.Add(1)
}
