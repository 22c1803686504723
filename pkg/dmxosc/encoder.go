// Package dmxosc encodes DMX channel values as OSC messages.
//
// Each channel becomes a message addressed /<universe>/<channel> with a single
// int32 argument holding the 0-255 value. Channel numbers are 1-based.
package dmxosc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

const (
	// Channels is the number of channels per universe.
	Channels = 512
	// DefaultUniverse is the address prefix used when none is configured.
	DefaultUniverse = "dmx/universe/0"
	// DefaultPort is the conventional OSC receive port of the target console.
	DefaultPort = 7770
)

// ErrChannelRange is returned for channel indices outside 0..Channels-1.
var ErrChannelRange = errors.New("dmxosc: channel index out of range")

// Address returns the OSC address for the 0-based channel index.
func Address(universe string, index int) string {
	return "/" + strings.Trim(universe, "/") + "/" + strconv.Itoa(index+1)
}

// Encoder builds OSC packets for one universe. Addresses are computed once, so an
// Encoder is read-only after construction and safe for concurrent use.
type Encoder struct {
	universe  string
	addresses [Channels]string
}

// NewEncoder creates an Encoder for the given address prefix.
func NewEncoder(universe string) *Encoder {
	e := &Encoder{universe: strings.Trim(universe, "/")}
	for i := range e.addresses {
		e.addresses[i] = Address(e.universe, i)
	}
	return e
}

// Universe returns the address prefix without surrounding slashes.
func (e *Encoder) Universe() string {
	return e.universe
}

// Message returns the OSC message for one channel.
func (e *Encoder) Message(index int, value byte) (*osc.Message, error) {
	if index < 0 || index >= Channels {
		return nil, fmt.Errorf("%w: %d", ErrChannelRange, index)
	}
	return osc.NewMessage(e.addresses[index], int32(value)), nil
}

// Encode returns the wire form of the OSC message for one channel.
func (e *Encoder) Encode(index int, value byte) ([]byte, error) {
	msg, err := e.Message(index, value)
	if err != nil {
		return nil, err
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Address, err)
	}
	return data, nil
}

// EncodeBundle returns one OSC bundle holding a message per channel, in channel
// order. Values past Channels are ignored; missing values are sent as zero.
func (e *Encoder) EncodeBundle(channels []byte, at time.Time) ([]byte, error) {
	bundle := osc.NewBundle(at)
	for i := 0; i < Channels; i++ {
		var value byte
		if i < len(channels) {
			value = channels[i]
		}
		msg, err := e.Message(i, value)
		if err != nil {
			return nil, err
		}
		if err := bundle.Append(msg); err != nil {
			return nil, fmt.Errorf("append %s: %w", msg.Address, err)
		}
	}
	data, err := bundle.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

// EncodeChannel is a convenience wrapper for a single message without a reusable Encoder.
func EncodeChannel(universe string, index int, value byte) ([]byte, error) {
	if index < 0 || index >= Channels {
		return nil, fmt.Errorf("%w: %d", ErrChannelRange, index)
	}
	return osc.NewMessage(Address(universe, index), int32(value)).MarshalBinary()
}
