// Package notification provides the notification manager for broadcasting
// cache change events.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/osa030/tunemap/internal/app/geocache"
)

// sendTimeout bounds how long one subscriber may hold up a broadcast.
const sendTimeout = 500 * time.Millisecond

// Event is a cache change as delivered to subscribers.
type Event struct {
	SequenceNo uint64      `json:"sequenceNo"`
	Op         geocache.Op `json:"op"`
	Keys       []string    `json:"keys"`
	Time       time.Time   `json:"time"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Event) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
	// busy is set while a send to stream is in flight.
	busy atomic.Bool
}

// Manager manages notification subscriptions and broadcasting.
// It implements geocache.Notifier.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	broadcastMu   sync.Mutex
	sequenceNo    atomic.Uint64
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Notify implements geocache.Notifier.
func (m *Manager) Notify(ch geocache.Change) {
	m.Broadcast(&Event{Op: ch.Op, Keys: ch.Keys})
}

// Broadcast stamps the event with the next sequence number and sends it to
// all subscribers. Broadcasts run one at a time, so every subscriber receives
// events in SequenceNo order. Each stream send is bounded by sendTimeout; a
// subscriber whose previous send is still in flight misses the event, and
// subscribers whose send fails are dropped.
func (m *Manager) Broadcast(event *Event) {
	m.broadcastMu.Lock()
	defer m.broadcastMu.Unlock()

	event.SequenceNo = m.sequenceNo.Add(1)
	if event.Time.IsZero() {
		event.Time = m.now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []string
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			if !s.busy.CompareAndSwap(false, true) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				err := s.stream.Send(event)
				s.busy.Store(false)
				done <- err
			}()

			select {
			case err := <-done:
				if err != nil {
					failedMu.Lock()
					failed = append(failed, s.id)
					failedMu.Unlock()
				}
			case <-ctx.Done():
				// Timeout - the subscriber misses this event
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()

	if len(failed) > 0 {
		m.mu.Lock()
		for _, id := range failed {
			delete(m.subscriptions, id)
		}
		m.mu.Unlock()
	}
}

// SequenceNo returns the sequence number of the last broadcast event.
func (m *Manager) SequenceNo() uint64 {
	return m.sequenceNo.Load()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// ChannelStream is a Stream backed by a buffered channel. Send never blocks:
// when the buffer is full the event is dropped.
type ChannelStream struct {
	ch chan *Event
}

// NewChannelStream creates a stream buffering up to size events.
func NewChannelStream(size int) *ChannelStream {
	if size < 1 {
		size = 1
	}
	return &ChannelStream{ch: make(chan *Event, size)}
}

// Send implements Stream.
func (s *ChannelStream) Send(e *Event) error {
	select {
	case s.ch <- e:
	default:
	}
	return nil
}

// Events returns the receive side of the stream.
func (s *ChannelStream) Events() <-chan *Event {
	return s.ch
}
