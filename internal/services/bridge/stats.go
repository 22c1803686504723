package bridge

import "sync/atomic"

// Stats counts bridge traffic. The zero value is ready to use.
type Stats struct {
	framesProcessed   atomic.Uint64
	framesDropped     atomic.Uint64
	datagramsSent     atomic.Uint64
	sendFailures      atomic.Uint64
	encodeFailures    atomic.Uint64
	handshakeFailures atomic.Uint64
	connectionsTotal  atomic.Uint64
	activeConnections atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	FramesProcessed   uint64 `json:"framesProcessed"`
	FramesDropped     uint64 `json:"framesDropped"`
	DatagramsSent     uint64 `json:"datagramsSent"`
	SendFailures      uint64 `json:"sendFailures"`
	EncodeFailures    uint64 `json:"encodeFailures"`
	HandshakeFailures uint64 `json:"handshakeFailures"`
	ConnectionsTotal  uint64 `json:"connectionsTotal"`
	ActiveConnections int64  `json:"activeConnections"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesProcessed:   s.framesProcessed.Load(),
		FramesDropped:     s.framesDropped.Load(),
		DatagramsSent:     s.datagramsSent.Load(),
		SendFailures:      s.sendFailures.Load(),
		EncodeFailures:    s.encodeFailures.Load(),
		HandshakeFailures: s.handshakeFailures.Load(),
		ConnectionsTotal:  s.connectionsTotal.Load(),
		ActiveConnections: s.activeConnections.Load(),
	}
}
