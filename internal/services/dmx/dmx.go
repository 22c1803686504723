// Package dmx turns raw WebSocket payloads into DMX512 universe snapshots.
package dmx

import (
	"encoding/hex"
	"errors"

	"github.com/gorilla/websocket"
)

// UniverseSize is the number of channels per DMX universe.
const UniverseSize = 512

// ErrNotBinary is returned for frames that do not carry DMX channel data.
var ErrNotBinary = errors.New("dmx: frame is not binary")

// Universe is one snapshot of 512 channel values, index 0 being channel 1.
// It is an array so that every snapshot is an independent copy.
type Universe [UniverseSize]byte

// Normalize copies payload into a fresh Universe. Payloads longer than
// UniverseSize are truncated, shorter ones leave the remaining channels at zero.
func Normalize(payload []byte) Universe {
	var u Universe
	copy(u[:], payload)
	return u
}

// ParseFrame normalizes a WebSocket message. Only binary messages are accepted.
func ParseFrame(messageType int, payload []byte) (Universe, error) {
	if messageType != websocket.BinaryMessage {
		return Universe{}, ErrNotBinary
	}
	return Normalize(payload), nil
}

// Hex returns the channel values as a lowercase hex string, two digits per channel.
func (u *Universe) Hex() string {
	return hex.EncodeToString(u[:])
}

// CountActive returns the number of non-zero channels.
func (u *Universe) CountActive() int {
	count := 0
	for _, v := range u {
		if v > 0 {
			count++
		}
	}
	return count
}
