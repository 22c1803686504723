// Package events carries bridge diagnostics to interested subscribers.
//
// The bridge reports conditions it recovers from (dropped frames, failed sends,
// failed handshakes) as Events. Publishing never blocks, so a slow subscriber
// loses events instead of stalling the data path.
package events

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Topic identifies the kind of event.
type Topic string

const (
	TopicAll              Topic = ""
	TopicFrameDropped     Topic = "FRAME_DROPPED"
	TopicEncodeFailed     Topic = "ENCODE_FAILED"
	TopicSendFailed       Topic = "SEND_FAILED"
	TopicHandshakeFailed  Topic = "HANDSHAKE_FAILED"
	TopicConnectionOpened Topic = "CONNECTION_OPENED"
	TopicConnectionClosed Topic = "CONNECTION_CLOSED"
)

// Event is one reported condition.
type Event struct {
	Topic  Topic
	ConnID string
	// Channel is the 1-based DMX channel, or 0 when the event is not about one channel.
	Channel int
	Detail  string
	Err     error
	Time    time.Time
}

// String formats the event for logs.
func (e Event) String() string {
	s := string(e.Topic)
	if e.ConnID != "" {
		s += " conn=" + e.ConnID
	}
	if e.Channel > 0 {
		s += " channel=" + strconv.Itoa(e.Channel)
	}
	if e.Detail != "" {
		s += " " + e.Detail
	}
	if e.Err != nil {
		s += fmt.Sprintf(": %v", e.Err)
	}
	return s
}

// Reporter receives events from the bridge.
type Reporter interface {
	Report(e Event)
}

// Discard is a Reporter that drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Event) {}

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic  // TopicAll receives every topic
	Filter  string // Optional connection ID
	Channel chan Event
}

// Bus manages subscriptions and event distribution.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*Subscriber
	nextID      int
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe creates a new subscription for a topic.
func (b *Bus) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{
		ID:      strconv.Itoa(b.nextID),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan Event, bufferSize),
	}
	b.subscribers = append(b.subscribers, sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.ID == sub.ID {
			close(s.Channel)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to every matching subscriber without blocking.
// The read lock is held while sending so Unsubscribe cannot close a channel mid-send.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.Topic != TopicAll && sub.Topic != e.Topic {
			continue
		}
		if sub.Filter != "" && sub.Filter != e.ConnID {
			continue
		}
		select {
		case sub.Channel <- e:
		default:
			// Channel full, skip
		}
	}
}

// Report stamps the event time and publishes it.
func (b *Bus) Report(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.Publish(e)
}

// SubscriberCount returns the number of subscribers for a topic. TopicAll counts everything.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if topic == TopicAll {
		return len(b.subscribers)
	}
	count := 0
	for _, sub := range b.subscribers {
		if sub.Topic == topic {
			count++
		}
	}
	return count
}
